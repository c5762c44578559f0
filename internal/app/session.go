package app

import (
	"sync"
	"time"

	"github.com/dkeye/dialin/internal/core"
	"github.com/dkeye/dialin/internal/domain"
)

// Session ties a room to its worker process. The queue and variables live
// in the Registry entry next to it.
type Session struct {
	RoomURL   domain.RoomURL
	CallID    string
	Process   core.Process
	StartedAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

func NewSession(room domain.RoomURL, callID string, proc core.Process) *Session {
	return &Session{
		RoomURL:   room,
		CallID:    callID,
		Process:   proc,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed once the session has been removed from the Registry.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) Info() core.SessionInfo {
	info := core.SessionInfo{
		RoomURL:   s.RoomURL,
		CallID:    s.CallID,
		StartedAt: s.StartedAt,
	}
	if s.Process != nil {
		info.Pid = s.Process.Pid()
	}
	return info
}
