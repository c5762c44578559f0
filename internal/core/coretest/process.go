// Package coretest provides in-memory collaborators for tests.
package coretest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/dialin/internal/core"
	"github.com/dkeye/dialin/internal/domain"
)

// Process is a worker backed by in-memory pipes. Closing both writers
// (Exit, Stop or Kill) ends the worker's streams.
type Process struct {
	PID int

	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	Waits   atomic.Int32
	Stops   atomic.Int32
	Kills   atomic.Int32
	closeMu sync.Mutex
}

func NewProcess(pid int) *Process {
	p := &Process{PID: pid}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *Process) Pid() int          { return p.PID }
func (p *Process) Stdout() io.Reader { return p.stdoutR }
func (p *Process) Stderr() io.Reader { return p.stderrR }

func (p *Process) Wait() error {
	p.Waits.Add(1)
	return nil
}

func (p *Process) Stop(time.Duration) error {
	p.Stops.Add(1)
	p.Exit()
	return nil
}

func (p *Process) Kill() error {
	p.Kills.Add(1)
	p.Exit()
	return nil
}

// Out writes lines to stdout. It blocks until the monitor reads them.
func (p *Process) Out(lines ...string) {
	for _, l := range lines {
		_, _ = io.WriteString(p.stdoutW, l+"\n")
	}
}

func (p *Process) Err(lines ...string) {
	for _, l := range lines {
		_, _ = io.WriteString(p.stderrW, l+"\n")
	}
}

// WriteStdout writes raw bytes, without a trailing newline.
func (p *Process) WriteStdout(s string) {
	_, _ = io.WriteString(p.stdoutW, s)
}

// FailStdout makes the next stdout read return err.
func (p *Process) FailStdout(err error) {
	_ = p.stdoutW.CloseWithError(err)
}

func (p *Process) Exit() {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	_ = p.stdoutW.Close()
	_ = p.stderrW.Close()
}

// Spawner hands out Process values and records every spec it receives.
type Spawner struct {
	mu      sync.Mutex
	Specs   []core.WorkerSpec
	Procs   []*Process
	Err     error
	OnSpawn func(core.WorkerSpec)
	nextPID int
}

func (s *Spawner) Spawn(_ context.Context, spec core.WorkerSpec) (core.Process, error) {
	if s.OnSpawn != nil {
		s.OnSpawn(spec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Specs = append(s.Specs, spec)
	if s.Err != nil {
		return nil, s.Err
	}
	s.nextPID++
	p := NewProcess(1000 + s.nextPID)
	s.Procs = append(s.Procs, p)
	return p, nil
}

func (s *Spawner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Specs)
}

func (s *Spawner) Proc(i int) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Procs[i]
}

// Provisioner creates numbered rooms on a fake domain.
type Provisioner struct {
	mu         sync.Mutex
	RoomCalls  int
	TokenCalls int
	Params     []domain.RoomParams
	TTLs       []time.Duration

	RoomErr  error
	TokenErr error
	NoRoom   bool
	NoToken  bool
	// FixedURL makes every room share one URL.
	FixedURL domain.RoomURL
}

func (p *Provisioner) CreateRoom(_ context.Context, params domain.RoomParams) (*domain.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RoomCalls++
	p.Params = append(p.Params, params)
	if p.RoomErr != nil {
		return nil, p.RoomErr
	}
	if p.NoRoom {
		return nil, nil
	}
	name := fmt.Sprintf("room-%d", p.RoomCalls)
	url := domain.RoomURL("https://test.daily.co/" + name)
	if p.FixedURL != "" {
		url = p.FixedURL
		name = url.Name()
	}
	return &domain.Room{
		Name:        name,
		URL:         url,
		SIPEndpoint: name + "@sip.daily.co",
	}, nil
}

func (p *Provisioner) GetToken(_ context.Context, _ domain.RoomURL, ttl time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TokenCalls++
	p.TTLs = append(p.TTLs, ttl)
	if p.TokenErr != nil {
		return "", p.TokenErr
	}
	if p.NoToken {
		return "", nil
	}
	return "token-" + fmt.Sprint(p.TokenCalls), nil
}

func (p *Provisioner) Calls() (rooms, tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.RoomCalls, p.TokenCalls
}
