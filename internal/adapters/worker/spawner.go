// Package worker starts bot subprocesses with os/exec.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dkeye/dialin/internal/core"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Command string
	// Args come before the per-session flags.
	Args       []string
	WorkingDir string
	Env        map[string]string
}

type Spawner struct {
	cfg Config
}

func NewSpawner(cfg Config) *Spawner {
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = ExecutableDir()
	}
	return &Spawner{cfg: cfg}
}

// ExecutableDir is the orchestrator's install location, or "." if unknown.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// SessionArgs encodes the session for the worker's command line.
func SessionArgs(spec core.WorkerSpec) []string {
	return []string{
		"-u", string(spec.RoomURL),
		"-t", spec.Token,
		"-i", spec.CallID,
		"-d", spec.CallDomain,
	}
}

// Spawn starts the worker with stdout and stderr piped and stdin unused.
// ctx only bounds the start; the worker outlives it.
func (s *Spawner) Spawn(ctx context.Context, spec core.WorkerSpec) (core.Process, error) {
	if s.cfg.Command == "" {
		return nil, fmt.Errorf("worker command cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := append(append([]string{}, s.cfg.Args...), SessionArgs(spec)...)
	cmd := exec.Command(s.cfg.Command, args...)
	cmd.Dir = s.cfg.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range s.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	log.Info().Str("module", "adapters.worker").Str("room", string(spec.RoomURL)).Int("pid", cmd.Process.Pid).Msg("worker spawned")
	return &process{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		exited: make(chan struct{}),
	}, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
}

func (p *process) Pid() int          { return p.cmd.Process.Pid }
func (p *process) Stdout() io.Reader { return p.stdout }
func (p *process) Stderr() io.Reader { return p.stderr }

func (p *process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})
	return p.waitErr
}

// Stop sends SIGTERM, then SIGKILL if the worker has not been reaped
// within grace. Reaping is left to whoever reads the streams.
func (p *process) Stop(grace time.Duration) error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.exited:
		return nil
	case <-timer.C:
		log.Warn().Str("module", "adapters.worker").Int("pid", p.Pid()).Msg("worker ignored SIGTERM, killing")
		return p.Kill()
	}
}

func (p *process) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
