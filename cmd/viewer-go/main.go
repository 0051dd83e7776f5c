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
	"golang.org/x/sync/errgroup"

	"gotham_viewer/viewer-go/internal/config"
	"gotham_viewer/viewer-go/internal/gotham"
	"gotham_viewer/viewer-go/internal/httpapi"
	"gotham_viewer/viewer-go/internal/mapgw"
	"gotham_viewer/viewer-go/internal/metrics"
	"gotham_viewer/viewer-go/internal/poller"
	"gotham_viewer/viewer-go/internal/targetgw"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := httpapi.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	client, err := gotham.New(logger.With().Str("component", "gotham").Logger(), gotham.Options{
		BaseURL:           cfg.Gotham.BaseURL,
		ClientID:          cfg.Gotham.ClientID,
		ClientSecret:      cfg.Gotham.ClientSecret,
		Timeout:           cfg.Gotham.Timeout,
		RequestsPerSecond: cfg.Gotham.RequestsPerSecond,
		Burst:             cfg.Gotham.Burst,
	}, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build gotham client")
	}

	maps := mapgw.New(logger, client, m)

	// targetgw reads a zero observation delay as its default; a zero in
	// config means no delay.
	observationDelay := cfg.Targets.ObservationRefreshDelay
	if observationDelay == 0 {
		observationDelay = -1
	}
	targets := targetgw.New(logger, client, m, targetgw.Options{
		ObservationRefreshDelay: observationDelay,
		CreateRefreshDelay:      cfg.Targets.CreateRefreshDelay,
	})

	if board := cfg.Targets.DefaultBoard; board != "" {
		targets.SelectBoard(board)
	}
	h := httpapi.NewHandler(logger, maps, targets, m)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("gotham", cfg.Gotham.BaseURL).Msg("viewer-go listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		poller.New(logger, targets, poller.Options{Interval: cfg.Targets.PollInterval}).Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// Closing the gateways ends open event streams so Shutdown can finish.
		maps.Close()
		targets.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		stop()
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}
