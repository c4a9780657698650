package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/config"
)

// --- Mock implementations ---

type mockPollService struct {
	createPollFn func(ctx context.Context, question string, options []string) (domain.Poll, error)
	getPollFn    func(ctx context.Context, pollID string) (domain.Poll, error)
}

func (m *mockPollService) CreatePoll(ctx context.Context, question string, options []string) (domain.Poll, error) {
	if m.createPollFn != nil {
		return m.createPollFn(ctx, question, options)
	}
	return domain.Poll{}, errors.New("not implemented")
}

func (m *mockPollService) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	if m.getPollFn != nil {
		return m.getPollFn(ctx, pollID)
	}
	return domain.Poll{}, domain.ErrPollNotFound
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "test",
		Port:            "3000",
		AllowedOrigins:  []string{"*"},
		CreateRateLimit: 100,
		CreateRateBurst: 100,
	}
}

func newTestServer(t *testing.T, app pollService, opts ...func(*Server)) *Server {
	t.Helper()

	clock := clockwork.NewFakeClock()
	srv := &Server{
		echo:             echo.New(),
		config:           testConfig(),
		app:              app,
		websocketHandler: http.NotFoundHandler(),
		clock:            clock,
		startTime:        clock.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withConfig(cfg *config.Config) func(*Server) {
	return func(s *Server) {
		s.config = cfg
	}
}

func withClock(clock clockwork.Clock) func(*Server) {
	return func(s *Server) {
		s.clock = clock
		s.startTime = clock.Now()
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
