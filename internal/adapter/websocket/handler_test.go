package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/app"
	"github.com/pscheid92/pollpulse/internal/broadcast"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveServer struct {
	url      string
	engine   *app.Engine
	registry *broadcast.Registry
	handler  *Handler
	metrics  *metrics.WebSocketMetrics
}

func newLiveServer(t *testing.T, rejectionNotices bool, limits ...Limits) *liveServer {
	t.Helper()
	var lim Limits
	if len(limits) > 0 {
		lim = limits[0]
	}
	clock := clockwork.NewRealClock()
	wsMetrics := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	registry := broadcast.NewRegistry(broadcast.Options{}, wsMetrics)
	engine := app.NewEngine(poll.NewStore(clock, 0), registry, clock, nil, rejectionNotices)
	handler := NewHandler(engine, NewCheckOrigin([]string{"*"}, false), clock, wsMetrics, lim)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &liveServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		engine:   engine,
		registry: registry,
		handler:  handler,
		metrics:  wsMetrics,
	}
}

func (s *liveServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := domain.EncodeEvent(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func receive(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func receiveTally(t *testing.T, conn *websocket.Conn) domain.Tally {
	t.Helper()
	env := receive(t, conn)
	require.Equal(t, domain.EventPollUpdate, env.Event)
	var tally domain.Tally
	require.NoError(t, json.Unmarshal(env.Data, &tally))
	return tally
}

func TestHandler_JoinVoteBroadcast(t *testing.T) {
	s := newLiveServer(t, false)
	p, err := s.engine.CreatePoll(context.Background(), "Color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	alice := s.dial(t)
	bob := s.dial(t)

	send(t, alice, domain.EventJoinPoll, p.ID)
	assert.Equal(t, domain.Tally{"Red": 0, "Blue": 0}, receiveTally(t, alice))
	send(t, bob, domain.EventJoinPoll, p.ID)
	assert.Equal(t, domain.Tally{"Red": 0, "Blue": 0}, receiveTally(t, bob))

	send(t, alice, domain.EventVote, domain.VoteRequest{PollID: p.ID, Option: "Red"})

	assert.Equal(t, domain.Tally{"Red": 1, "Blue": 0}, receiveTally(t, alice))
	assert.Equal(t, domain.Tally{"Red": 1, "Blue": 0}, receiveTally(t, bob))
}

func TestHandler_InvalidEventsAreIgnored(t *testing.T) {
	s := newLiveServer(t, false)
	p, err := s.engine.CreatePoll(context.Background(), "Color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	conn := s.dial(t)
	send(t, conn, domain.EventJoinPoll, "never-created")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, "dance", nil)
	send(t, conn, domain.EventJoinPoll, 42)
	send(t, conn, domain.EventVote, domain.VoteRequest{PollID: p.ID, Option: "Green"})
	send(t, conn, domain.EventVote, domain.VoteRequest{PollID: "never-created", Option: "Red"})

	// Frames arrive in order, so the join snapshot being first proves nothing
	// was pushed for the ignored events.
	send(t, conn, domain.EventJoinPoll, p.ID)
	assert.Equal(t, domain.Tally{"Red": 0, "Blue": 0}, receiveTally(t, conn))
}

func TestHandler_RejectionNotice(t *testing.T) {
	s := newLiveServer(t, true)
	p, err := s.engine.CreatePoll(context.Background(), "Color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	conn := s.dial(t)
	send(t, conn, domain.EventVote, domain.VoteRequest{PollID: p.ID, Option: "Green"})

	env := receive(t, conn)
	assert.Equal(t, domain.EventVoteRejected, env.Event)
	var rejection domain.VoteRejection
	require.NoError(t, json.Unmarshal(env.Data, &rejection))
	assert.Equal(t, "invalid option", rejection.Reason)
}

func TestHandler_LeavePoll(t *testing.T) {
	s := newLiveServer(t, false)
	p, err := s.engine.CreatePoll(context.Background(), "Color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	conn := s.dial(t)
	send(t, conn, domain.EventJoinPoll, p.ID)
	receiveTally(t, conn)

	send(t, conn, domain.EventLeavePoll, p.ID)
	assert.Eventually(t, func() bool { return s.registry.SubscriberCount(p.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.handler.ConnectionCount(), "leaving a poll keeps the connection open")
}

func TestHandler_DisconnectUnsubscribes(t *testing.T) {
	s := newLiveServer(t, false)
	p, err := s.engine.CreatePoll(context.Background(), "Color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	conn := s.dial(t)
	send(t, conn, domain.EventJoinPoll, p.ID)
	receiveTally(t, conn)
	require.Equal(t, 1, s.registry.SubscriberCount(p.ID))
	require.Equal(t, 1, s.handler.ConnectionCount())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return s.registry.SubscriberCount(p.ID) == 0 && s.handler.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.InDelta(t, 0, testutil.ToFloat64(s.metrics.ActiveConnections), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(s.metrics.ActiveSubscriptions), 0)
}

func TestHandler_ShutdownSendsCloseFrame(t *testing.T) {
	s := newLiveServer(t, false)
	conn := s.dial(t)

	require.Eventually(t, func() bool { return s.handler.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.handler.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Contains(t, closeErr.Text, "shutting down")
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	clock := clockwork.NewRealClock()
	registry := broadcast.NewRegistry(broadcast.Options{}, nil)
	engine := app.NewEngine(poll.NewStore(clock, 0), registry, clock, nil, false)
	handler := NewHandler(engine, NewCheckOrigin([]string{"https://polls.example.com"}, false), clock, nil, Limits{})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	header := http.Header{"Origin": []string{"https://evil.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandler_ConnectionLimits(t *testing.T) {
	tests := []struct {
		name       string
		limits     Limits
		wantStatus int
		wantReason string
	}{
		{"global cap", Limits{MaxConnections: 1}, http.StatusServiceUnavailable, "global_limit"},
		{"per-ip cap", Limits{MaxConnectionsPerIP: 1}, http.StatusTooManyRequests, "ip_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newLiveServer(t, false, tt.limits)
			s.dial(t)

			_, resp, err := websocket.DefaultDialer.Dial(s.url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.InDelta(t, 1, testutil.ToFloat64(s.metrics.ConnectionsRejected.WithLabelValues(tt.wantReason)), 0)
		})
	}
}

func TestHandler_ConnectionSlotReleasedOnClose(t *testing.T) {
	s := newLiveServer(t, false, Limits{MaxConnections: 1})

	first := s.dial(t)
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return s.handler.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// The deferred release runs after untrack, so allow a moment for it.
	require.Eventually(t, func() bool {
		conn, resp, err := websocket.DefaultDialer.Dial(s.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandler_VoteRateLimit(t *testing.T) {
	s := newLiveServer(t, false, Limits{VoteRate: 0.001, VoteBurst: 2})
	p, err := s.engine.CreatePoll(context.Background(), "Color?", []string{"Red", "Blue"})
	require.NoError(t, err)

	conn := s.dial(t)
	send(t, conn, domain.EventJoinPoll, p.ID)
	receiveTally(t, conn)

	for range 5 {
		send(t, conn, domain.EventVote, domain.VoteRequest{PollID: p.ID, Option: "Red"})
	}
	assert.Equal(t, domain.Tally{"Red": 1, "Blue": 0}, receiveTally(t, conn))
	assert.Equal(t, domain.Tally{"Red": 2, "Blue": 0}, receiveTally(t, conn))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.VotesThrottled) == 3
	}, 2*time.Second, 10*time.Millisecond)
	got, err := s.engine.GetPoll(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Tally.Total())
}
