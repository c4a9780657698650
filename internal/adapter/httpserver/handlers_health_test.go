package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHandleLiveness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv := newTestServer(t, &mockPollService{}, withClock(clock))
	clock.Advance(90 * time.Second)

	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/health/live", nil), rec)
	err := srv.handleLiveness(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 90.0, body["uptime"], 0.001)
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   []string{`"status":"ready"`},
		},
		{
			name: "all healthy",
			checks: []HealthCheck{
				{Name: "poll_store", Check: healthOK},
				{Name: "live_channel", Check: healthOK},
			},
			wantStatus: http.StatusOK,
			wantBody:   []string{`"status":"ready"`},
		},
		{
			name: "store unhealthy",
			checks: []HealthCheck{
				{Name: "poll_store", Check: healthErr("store unavailable")},
				{Name: "live_channel", Check: healthOK},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   []string{`"status":"unhealthy"`, `"failed_check":"poll_store"`, `"error":"store unavailable"`},
		},
		{
			name: "first failure wins",
			checks: []HealthCheck{
				{Name: "poll_store", Check: healthOK},
				{Name: "live_channel", Check: healthErr("shutting down")},
				{Name: "never_reached", Check: healthErr("boom")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   []string{`"failed_check":"live_channel"`, `"error":"shutting down"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockPollService{}, withHealthChecks(tt.checks...))

			rec := httptest.NewRecorder()
			c := srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)
			err := srv.handleReadiness(c)

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			for _, want := range tt.wantBody {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestHandleReadiness_PassesDeadline(t *testing.T) {
	var hadDeadline bool
	srv := newTestServer(t, &mockPollService{}, withHealthChecks(HealthCheck{
		Name: "deadline",
		Check: func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		},
	}))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hadDeadline)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &mockPollService{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}
