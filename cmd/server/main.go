package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/dialin/internal/adapters/http"
	"github.com/dkeye/dialin/internal/adapters/daily"
	"github.com/dkeye/dialin/internal/adapters/worker"
	"github.com/dkeye/dialin/internal/app"
	"github.com/dkeye/dialin/internal/app/orch"
	"github.com/dkeye/dialin/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("bad flags")
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	o := orch.New(
		app.NewRegistry(),
		daily.NewClient(cfg.Daily.APIURL, cfg.Daily.APIKey),
		worker.NewSpawner(worker.Config{
			Command:    cfg.Worker.Command,
			Args:       cfg.Worker.Args,
			WorkingDir: cfg.Worker.Dir,
		}),
		orch.Options{
			TokenTTL:       cfg.Daily.TokenTTL,
			RoomExpiry:     cfg.Daily.RoomExpiry,
			SIPDisplayName: cfg.Daily.SIPDisplayName,
			StopGrace:      cfg.Worker.StopGrace,
		},
	)

	r := router.SetupRouter(cfg, o)
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("dial-in server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Workers first: their exit closes the output streams held open by
	// /bot_output clients, which lets the HTTP server drain.
	if err := o.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("bots did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
