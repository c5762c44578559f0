package orch

import (
	"sort"

	"github.com/dkeye/dialin/internal/core"
	"github.com/dkeye/dialin/internal/domain"
)

// StreamOutput returns the room's output queue for a consumer to drain.
func (o *Orchestrator) StreamOutput(room domain.RoomURL) (*core.OutputQueue, error) {
	q, ok := o.Registry.Queue(room)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return q, nil
}

func (o *Orchestrator) GetVariable(room domain.RoomURL, name string) (string, error) {
	return o.Registry.Variable(room, name)
}

func (o *Orchestrator) GetTranscript(room domain.RoomURL) (string, error) {
	return o.Registry.Transcript(room)
}

// ListSessions returns active sessions, oldest first.
func (o *Orchestrator) ListSessions() []core.SessionInfo {
	sessions := o.Registry.Sessions()
	out := make([]core.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
