package orch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/dialin/internal/app"
	"github.com/dkeye/dialin/internal/app/monitor"
	"github.com/dkeye/dialin/internal/core"
	"github.com/dkeye/dialin/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const (
	DefaultTokenTTL       = time.Hour
	DefaultStopGrace      = 5 * time.Second
	DefaultSIPDisplayName = "dialin-user"
)

var errShuttingDown = fmt.Errorf("%w: orchestrator is shutting down", domain.ErrSpawn)

type Options struct {
	TokenTTL       time.Duration
	RoomExpiry     time.Duration
	SIPDisplayName string
	StopGrace      time.Duration
}

func (o Options) withDefaults() Options {
	if o.TokenTTL <= 0 {
		o.TokenTTL = DefaultTokenTTL
	}
	if o.RoomExpiry <= 0 {
		o.RoomExpiry = o.TokenTTL
	}
	if o.SIPDisplayName == "" {
		o.SIPDisplayName = DefaultSIPDisplayName
	}
	if o.StopGrace <= 0 {
		o.StopGrace = DefaultStopGrace
	}
	return o
}

// Orchestrator drives a room session from provisioning to teardown and
// answers queries against the Registry.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.Provisioner
	Workers  core.Spawner
	Monitor  *monitor.Monitor
	Options  Options

	tasks conc.WaitGroup

	// startMu orders the stopping flag against starts.Add.
	startMu  sync.Mutex
	starts   sync.WaitGroup
	stopping atomic.Bool
}

func New(reg *app.Registry, rooms core.Provisioner, workers core.Spawner, opts Options) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Workers:  workers,
		Monitor:  monitor.New(reg),
		Options:  opts.withDefaults(),
	}
}

// StartSession provisions a dial-in room and starts a bot in it. It
// returns once the worker exists; monitoring continues in the background.
func (o *Orchestrator) StartSession(ctx context.Context, call domain.Call) (*domain.Room, error) {
	o.startMu.Lock()
	if o.stopping.Load() {
		o.startMu.Unlock()
		return nil, errShuttingDown
	}
	o.starts.Add(1)
	o.startMu.Unlock()
	defer o.starts.Done()

	logger := log.With().Str("module", "orch").Str("call_id", call.ID).Logger()
	opts := o.Options.withDefaults()

	logger.Info().Str("call_domain", call.Domain).Msg("creating room")
	room, err := o.Rooms.CreateRoom(ctx, domain.DialInParams(opts.SIPDisplayName, opts.RoomExpiry))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get room: %w", domain.ErrProvisioning, err)
	}
	if room == nil || room.URL == "" {
		return nil, fmt.Errorf("%w: failed to get room", domain.ErrProvisioning)
	}
	logger = logger.With().Str("room", string(room.URL)).Logger()

	token, err := o.Rooms.GetToken(ctx, room.URL, opts.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get room token: %w", domain.ErrProvisioning, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: failed to get room token", domain.ErrProvisioning)
	}

	// The queue must exist before the worker can write anything.
	if _, err := o.Registry.Reserve(room.URL); err != nil {
		return nil, err
	}

	proc, err := o.Workers.Spawn(ctx, core.WorkerSpec{
		RoomURL:    room.URL,
		Token:      token,
		CallID:     call.ID,
		CallDomain: call.Domain,
	})
	if err != nil {
		o.Registry.Remove(room.URL)
		logger.Error().Err(err).Msg("spawn failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrSpawn, err)
	}

	sess := app.NewSession(room.URL, call.ID, proc)
	if err := o.Registry.Insert(room.URL, sess); err != nil {
		_ = proc.Kill()
		_ = proc.Wait()
		o.Registry.Remove(room.URL)
		return nil, err
	}

	o.tasks.Go(func() { o.Monitor.Run(sess) })

	// Shutdown may have taken its session snapshot while this start was
	// still provisioning.
	if o.stopping.Load() {
		logger.Warn().Int("pid", proc.Pid()).Msg("shutdown began during start, stopping bot")
		if err := proc.Stop(opts.StopGrace); err != nil {
			logger.Warn().Err(err).Msg("stop failed")
		}
		return nil, errShuttingDown
	}

	logger.Info().Int("pid", proc.Pid()).Msg("bot started")
	return room, nil
}

// StopSession asks a room's worker to exit. The monitor does the teardown.
func (o *Orchestrator) StopSession(room domain.RoomURL) error {
	sess, ok := o.Registry.Get(room)
	if !ok {
		return domain.ErrRoomNotFound
	}
	log.Info().Str("module", "orch").Str("room", string(room)).Int("pid", sess.Process.Pid()).Msg("stopping bot")
	return sess.Process.Stop(o.Options.withDefaults().StopGrace)
}

// Shutdown stops every tracked worker, then waits for in-flight starts
// and all monitors to finish their teardown, or for ctx to end. Starts
// still provisioning stop their own worker once it is spawned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.startMu.Lock()
	o.stopping.Store(true)
	o.startMu.Unlock()
	grace := o.Options.withDefaults().StopGrace
	sessions := o.Registry.Sessions()
	log.Info().Str("module", "orch").Int("sessions", len(sessions)).Msg("stopping all bots")

	var stops conc.WaitGroup
	for _, sess := range sessions {
		stops.Go(func() {
			if err := sess.Process.Stop(grace); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("room", string(sess.RoomURL)).Msg("stop failed")
			}
		})
	}
	stops.Wait()

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.starts.Wait()
		if r := o.tasks.WaitAndRecover(); r != nil {
			log.Error().Str("module", "orch").Str("panic", r.String()).Msg("monitor panicked")
		}
	}()

	select {
	case <-done:
		log.Info().Str("module", "orch").Msg("all monitors finished")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
