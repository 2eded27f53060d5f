package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driftboard/driftboard/internal/assist"
	"github.com/driftboard/driftboard/internal/capability"
	"github.com/driftboard/driftboard/internal/config"
	"github.com/driftboard/driftboard/internal/metrics"
	"github.com/driftboard/driftboard/internal/planner"
	"github.com/driftboard/driftboard/internal/presence"
	"github.com/driftboard/driftboard/internal/server"
	"github.com/driftboard/driftboard/internal/store"
	"github.com/driftboard/driftboard/internal/stream"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("api_addr", cfg.ListenAddr).
		Str("stream_addr", cfg.StreamListenAddr).
		Bool("durable", cfg.Durable()).
		Msg("starting driftboard")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Storage: sqlite when a path is configured, memory otherwise
	var st store.Store
	if cfg.Durable() {
		sqliteStore, err := store.NewSQLite(cfg.DBPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open store")
		}
		st = sqliteStore
	} else {
		st = store.NewMemory()
		logger.Info().Msg("no DB_PATH configured, running in-memory")
	}

	// Demo workspace
	if cfg.SeedPath != "" {
		if err := server.ApplySeed(ctx, st, cfg.SeedPath, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply seed")
		}
	}

	collector := metrics.New()
	hub := stream.NewHub(32, logger)

	tracker := presence.NewTracker(cfg.PresenceTTL, hub.PublishPresence, logger)
	go tracker.Run(ctx)

	plans := planner.NewRegistry(cfg.ResumeTokenTTL, logger)
	go func() {
		ticker := time.NewTicker(cfg.ResumeTokenTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := plans.Sweep(ctx); n > 0 {
					logger.Debug().Int("expired", n).Msg("resume tokens swept")
				}
			}
		}
	}()

	engine := assist.NewEngine(logger)

	apiServer := server.NewServer(server.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		AuthConfig: server.AuthConfig{
			Mode:      cfg.AuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.JWTSecret,
		},
		RateLimit: server.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins:  cfg.CORSOrigins,
		Capabilities: capability.Known,
	}, st, hub, tracker, plans, engine, collector, logger)

	// Stream + metrics listener. The websocket upgrade needs net/http, so it
	// lives apart from the fasthttp-based API.
	streamServer := &http.Server{
		Addr:         cfg.StreamListenAddr,
		Handler:      server.NewAuxMux(hub, collector, logger),
		ReadTimeout:  0, // websocket connections are long-lived
		WriteTimeout: 0,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.StreamListenAddr).Msg("stream server starting")
		if err := streamServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("stream server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := streamServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("stream server shutdown error")
	}
	if err := apiServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("api server shutdown error")
	}
	if err := st.Close(); err != nil {
		logger.Error().Err(err).Msg("store close error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("driftboard stopped")
}
