package core

import (
	"context"
	"io"
	"time"

	"github.com/dkeye/dialin/internal/domain"
)

// Provisioner creates rooms and access tokens on the remote video API.
type Provisioner interface {
	CreateRoom(ctx context.Context, params domain.RoomParams) (*domain.Room, error)
	GetToken(ctx context.Context, room domain.RoomURL, ttl time.Duration) (string, error)
}

// WorkerSpec is everything a bot subprocess needs to join its room.
type WorkerSpec struct {
	RoomURL    domain.RoomURL
	Token      string
	CallID     string
	CallDomain string
}

// Process is a running worker. Stdout and Stderr must be fully read before Wait.
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait reaps the process. Safe to call more than once.
	Wait() error
	// Stop sends a graceful signal and kills the process if it has not
	// exited within grace.
	Stop(grace time.Duration) error
	Kill() error
}

// Spawner starts worker subprocesses.
type Spawner interface {
	Spawn(ctx context.Context, spec WorkerSpec) (Process, error)
}

// SessionInfo is a read-only view of an active session for APIs.
type SessionInfo struct {
	RoomURL   domain.RoomURL `json:"room_url"`
	CallID    string         `json:"call_id"`
	Pid       int            `json:"pid"`
	StartedAt time.Time      `json:"started_at"`
}
