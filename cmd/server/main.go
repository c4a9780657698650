package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/httpserver"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/adapter/websocket"
	"github.com/pscheid92/pollpulse/internal/app"
	"github.com/pscheid92/pollpulse/internal/broadcast"
	"github.com/pscheid92/pollpulse/internal/platform/config"
	"github.com/pscheid92/pollpulse/internal/platform/logging"
	"github.com/pscheid92/pollpulse/internal/platform/version"
	"github.com/pscheid92/pollpulse/internal/poll"
)

const shutdownTimeout = 10 * time.Second

var errShuttingDown = errors.New("server is shutting down")

func runGracefulShutdown(srv *httpserver.Server, wsHandler *websocket.Handler, draining *atomic.Bool) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")
		draining.Store(true)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Hijacked websocket connections outlive the HTTP server shutdown.
		wsHandler.Shutdown()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func storeHealthCheck(engine *app.Engine) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		counted := make(chan int, 1)
		go func() { counted <- engine.PollCount() }()

		select {
		case <-counted:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("poll store unresponsive: %w", ctx.Err())
		}
	}
}

func drainingHealthCheck(draining *atomic.Bool) func(ctx context.Context) error {
	return func(context.Context) error {
		if draining.Load() {
			return errShuttingDown
		}
		return nil
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	metricsSet := metrics.NewSet()

	store := poll.NewStore(clock, cfg.MaxOptions)
	registry := broadcast.NewRegistry(broadcast.Options{
		MultiPoll:         cfg.MultiPollSubscriptions,
		MaxClientsPerPoll: cfg.MaxClientsPerPoll,
	}, metricsSet.WebSocket)
	engine := app.NewEngine(store, registry, clock, metricsSet.Votes, cfg.VoteRejectionNotices)

	checkOrigin := websocket.NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment())
	wsHandler := websocket.NewHandler(engine, checkOrigin, clock, metricsSet.WebSocket, websocket.Limits{
		MaxConnections:      cfg.MaxConnections,
		MaxConnectionsPerIP: cfg.MaxConnectionsPerIP,
		VoteRate:            cfg.VoteRateLimit,
		VoteBurst:           cfg.VoteRateBurst,
	})

	var draining atomic.Bool
	healthChecks := []httpserver.HealthCheck{
		{Name: "shutdown", Check: drainingHealthCheck(&draining)},
		{Name: "poll_store", Check: storeHealthCheck(engine)},
	}

	srv := httpserver.NewServer(cfg, engine, wsHandler, metricsSet, clock, healthChecks)

	done := runGracefulShutdown(srv, wsHandler, &draining)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
