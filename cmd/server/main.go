package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Lobby/internal/adapters/http"
	"github.com/dkeye/Lobby/internal/adapters/bus"
	sig "github.com/dkeye/Lobby/internal/adapters/signal"
	"github.com/dkeye/Lobby/internal/adapters/store"
	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	policy, err := cfg.SessionPolicy()
	if err != nil {
		return err
	}
	members, err := store.Open(cfg.Store.Dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := members.Close(); err != nil {
			log.Error().Err(err).Msg("close membership store")
		}
	}()
	hub := bus.NewHub()
	defer hub.Close()

	coord := app.NewCoordinator(members, hub, policy)
	reg := app.NewRegistry()
	limiter := sig.NewRateLimiter(cfg.Rate.Limit, cfg.Rate.Interval)
	ctrl := sig.NewSignalWSController(coord, reg, limiter, sig.OptionsFromConfig(cfg))

	r := router.SetupRouter(ctx, router.Options{Mode: cfg.Mode, Secret: cfg.Secret}, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Lobby server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("sessions", reg.CancelAll()).Msg("Shutting down")
		// Hijacked websockets are not tracked by Shutdown; give them a moment
		// to flush the session-ended notice.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		for reg.Len() > 0 && shutdownCtx.Err() == nil {
			time.Sleep(50 * time.Millisecond)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})
	return g.Wait()
}
