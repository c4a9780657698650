package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/config"
)

type pollService interface {
	CreatePoll(ctx context.Context, question string, options []string) (domain.Poll, error)
	GetPoll(ctx context.Context, pollID string) (domain.Poll, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app              pollService
	websocketHandler http.Handler
	metrics          *metrics.Set

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

// NewServer wires the HTTP gateway. metricsSet may be nil, in which case
// /metrics is not served and requests are not instrumented.
func NewServer(cfg *config.Config, app pollService, websocketHandler http.Handler, metricsSet *metrics.Set, clock clockwork.Clock, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		app:              app,
		websocketHandler: websocketHandler,
		metrics:          metricsSet,
		healthChecks:     healthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
