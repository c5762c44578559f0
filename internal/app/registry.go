package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/dialin/internal/core"
	"github.com/dkeye/dialin/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomEntry holds the per-room state. Queue exists from reservation on,
// session and vars only once the worker has been spawned.
type roomEntry struct {
	queue   *core.OutputQueue
	session *Session
	vars    map[string]string
}

// Registry is the single source of truth for active rooms. The mutex
// guards each entry's queue, session, variables and call id as one unit.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomURL]*roomEntry
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomURL]*roomEntry)}
}

// Reserve creates the output queue for a room before its worker starts.
func (r *Registry) Reserve(room domain.RoomURL) (*core.OutputQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomBusy, room)
	}
	q := core.NewOutputQueue()
	r.rooms[room] = &roomEntry{queue: q}
	log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("reserved queue")
	return q, nil
}

// Insert binds a spawned session to its reserved room.
func (r *Registry) Insert(room domain.RoomURL, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[room]
	if !ok {
		return fmt.Errorf("%w: no queue reserved for %s", domain.ErrRoomBusy, room)
	}
	if e.session != nil {
		return fmt.Errorf("%w: %s", domain.ErrRoomBusy, room)
	}
	e.session = sess
	e.vars = make(map[string]string)
	log.Info().Str("module", "app.registry").Str("room", string(room)).Str("call_id", sess.CallID).Msg("bound session")
	return nil
}

func (r *Registry) Get(room domain.RoomURL) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.rooms[room]; ok && e.session != nil {
		return e.session, true
	}
	return nil, false
}

func (r *Registry) Queue(room domain.RoomURL) (*core.OutputQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.rooms[room]; ok {
		return e.queue, true
	}
	return nil, false
}

// SetVariable stores a value. It reports false if the room has no session.
func (r *Registry) SetVariable(room domain.RoomURL, name, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[room]
	if !ok || e.vars == nil {
		return false
	}
	e.vars[name] = value
	return true
}

func (r *Registry) Variable(room domain.RoomURL, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[room]
	if !ok || e.vars == nil {
		return "", domain.ErrRoomNotFound
	}
	v, ok := e.vars[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrVariableNotFound, name)
	}
	return v, nil
}

// Transcript returns "" when the room is known but no transcript arrived yet.
func (r *Registry) Transcript(room domain.RoomURL) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[room]
	if !ok || e.vars == nil {
		return "", domain.ErrRoomNotFound
	}
	return e.vars[domain.TranscriptVar], nil
}

func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.rooms))
	for _, e := range r.rooms {
		if e.session != nil {
			out = append(out, e.session)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Remove closes the room's queue and drops all of its state. Removing an
// absent room is a no-op.
func (r *Registry) Remove(room domain.RoomURL) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.rooms[room]
	if ok {
		delete(r.rooms, room)
		e.queue.Close()
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	if e.session != nil {
		e.session.markDone()
	}
	log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("removed room")
	return e.session, true
}
