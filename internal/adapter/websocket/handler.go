package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/correlation"
	"golang.org/x/time/rate"
)

const maxMessageSize = 4096

// Handler upgrades HTTP requests to the live channel and runs one read loop
// per connection, dispatching join-poll and vote events to the engine.
type Handler struct {
	engine    domain.VoteEngine
	clock     clockwork.Clock
	wsMetrics *metrics.WebSocketMetrics
	upgrader  websocket.Upgrader

	limits Limits
	global *globalConnectionLimiter
	perIP  *ipConnectionLimiter

	mu      sync.Mutex
	clients map[domain.ConnectionID]*clientWriter
}

func NewHandler(engine domain.VoteEngine, checkOrigin func(r *http.Request) bool, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics, limits Limits) *Handler {
	return &Handler{
		engine:    engine,
		clock:     clock,
		wsMetrics: wsMetrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		limits:  limits,
		global:  newGlobalConnectionLimiter(limits.MaxConnections),
		perIP:   newIPConnectionLimiter(limits.MaxConnectionsPerIP),
		clients: make(map[domain.ConnectionID]*clientWriter),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.global.acquire() {
		h.reject(w, r, "global_limit", http.StatusServiceUnavailable)
		return
	}
	defer h.global.release()

	ip := clientIP(r)
	if !h.perIP.acquire(ip) {
		h.reject(w, r, "ip_limit", http.StatusTooManyRequests)
		return
	}
	defer h.perIP.release(ip)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Debug("WebSocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	connID := domain.ConnectionID(uuid.NewString())
	ctx := correlation.WithConnectionID(context.WithoutCancel(r.Context()), string(connID))

	cw := newClientWriter(connID, conn, h.clock, h.wsMetrics)
	h.track(cw)
	slog.DebugContext(ctx, "Client connected", "remote_addr", r.RemoteAddr)

	defer func() {
		h.engine.Disconnect(ctx, connID)
		h.untrack(connID)
		cw.stop()
		slog.DebugContext(ctx, "Client disconnected")
	}()

	h.readLoop(ctx, conn, cw, h.limits.newVoteLimiter())
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, reason string, status int) {
	slog.Warn("WebSocket connection rejected", "reason", reason, "remote_addr", r.RemoteAddr)
	if h.wsMetrics != nil {
		h.wsMetrics.ConnectionsRejected.WithLabelValues(reason).Inc()
	}
	http.Error(w, http.StatusText(status), status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ConnectionCount returns the number of open live-channel connections.
func (h *Handler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every open connection with a normal-closure frame.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	clients := make([]*clientWriter, 0, len(h.clients))
	for _, cw := range h.clients {
		clients = append(clients, cw)
	}
	h.mu.Unlock()

	for _, cw := range clients {
		cw.stopGraceful("server shutting down")
	}
	slog.Info("Live channel connections closed", "count", len(clients))
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, cw *clientWriter, votes *rate.Limiter) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "Unexpected close", "error", err)
			}
			return
		}
		cw.recordActivity()
		h.dispatch(ctx, cw, message, votes)
	}
}

func (h *Handler) dispatch(ctx context.Context, cw *clientWriter, message []byte, votes *rate.Limiter) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Panic while handling live-channel frame", "panic", r)
		}
	}()

	var envelope domain.Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		slog.DebugContext(ctx, "Ignoring malformed frame", "error", err)
		return
	}

	switch envelope.Event {
	case domain.EventJoinPoll:
		var pollID string
		if err := json.Unmarshal(envelope.Data, &pollID); err != nil || pollID == "" {
			slog.DebugContext(ctx, "Ignoring join-poll without poll id")
			return
		}
		h.engine.Join(ctx, cw, pollID)

	case domain.EventLeavePoll:
		var pollID string
		if err := json.Unmarshal(envelope.Data, &pollID); err != nil || pollID == "" {
			slog.DebugContext(ctx, "Ignoring leave-poll without poll id")
			return
		}
		h.engine.Leave(ctx, cw.ID(), pollID)

	case domain.EventVote:
		var vote domain.VoteRequest
		if err := json.Unmarshal(envelope.Data, &vote); err != nil {
			slog.DebugContext(ctx, "Ignoring malformed vote", "error", err)
			return
		}
		if votes != nil && !votes.Allow() {
			slog.DebugContext(ctx, "Vote throttled", "poll_id", vote.PollID)
			if h.wsMetrics != nil {
				h.wsMetrics.VotesThrottled.Inc()
			}
			return
		}
		if err := h.engine.HandleVote(ctx, cw, vote.PollID, vote.Option); err != nil {
			slog.DebugContext(ctx, "Vote rejected", "poll_id", vote.PollID, "option", vote.Option, "error", err)
		}

	default:
		slog.DebugContext(ctx, "Ignoring unknown event", "event", envelope.Event)
	}
}

func (h *Handler) track(cw *clientWriter) {
	h.mu.Lock()
	h.clients[cw.ID()] = cw
	h.mu.Unlock()
	if h.wsMetrics != nil {
		h.wsMetrics.ActiveConnections.Inc()
	}
}

func (h *Handler) untrack(connID domain.ConnectionID) {
	h.mu.Lock()
	delete(h.clients, connID)
	h.mu.Unlock()
	if h.wsMetrics != nil {
		h.wsMetrics.ActiveConnections.Dec()
	}
}
