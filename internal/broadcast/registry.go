package broadcast

import (
	"log/slog"
	"sync"

	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
)

type room struct {
	mu      sync.Mutex
	members map[domain.ConnectionID]domain.Subscriber
}

func (r *room) snapshot() []domain.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := make([]domain.Subscriber, 0, len(r.members))
	for _, sub := range r.members {
		subs = append(subs, sub)
	}
	return subs
}

type connection struct {
	sub   domain.Subscriber
	polls map[string]struct{}
}

// Options tune membership policy.
type Options struct {
	// MultiPoll lets one connection watch several polls at once. When false,
	// joining a poll leaves the previously joined one.
	MultiPoll bool
	// MaxClientsPerPoll caps room size; 0 means unlimited.
	MaxClientsPerPoll int
}

// Registry is the subscription registry. It is the only owner and mutator of
// poll membership.
type Registry struct {
	opts      Options
	wsMetrics *metrics.WebSocketMetrics

	// mu guards rooms and conns; room membership additionally sits behind room.mu
	// so broadcasts only need the read lock here.
	mu            sync.RWMutex
	rooms         map[string]*room
	conns         map[domain.ConnectionID]*connection
	subscriptions int
}

func NewRegistry(opts Options, wsMetrics *metrics.WebSocketMetrics) *Registry {
	return &Registry{
		opts:      opts,
		wsMetrics: wsMetrics,
		rooms:     make(map[string]*room),
		conns:     make(map[domain.ConnectionID]*connection),
	}
}

// Subscribe adds sub to pollID's room. Re-subscribing to the same poll is a no-op.
// Callers are expected to have checked that the poll exists.
func (r *Registry) Subscribe(sub domain.Subscriber, pollID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := sub.ID()
	conn, exists := r.conns[connID]
	if exists {
		if _, already := conn.polls[pollID]; already {
			return nil
		}
	}

	target := r.rooms[pollID]
	if target != nil && r.opts.MaxClientsPerPoll > 0 {
		target.mu.Lock()
		full := len(target.members) >= r.opts.MaxClientsPerPoll
		target.mu.Unlock()
		if full {
			slog.Warn("Rejecting subscription: max clients reached", "poll_id", pollID, "max_clients", r.opts.MaxClientsPerPoll)
			return domain.ErrPollFull
		}
	}

	if !exists {
		conn = &connection{sub: sub, polls: make(map[string]struct{})}
		r.conns[connID] = conn
	}

	if !r.opts.MultiPoll {
		for previous := range conn.polls {
			r.leaveLocked(conn, previous)
		}
	}

	if target == nil {
		target = &room{members: make(map[domain.ConnectionID]domain.Subscriber)}
		r.rooms[pollID] = target
	}
	target.mu.Lock()
	target.members[connID] = sub
	size := len(target.members)
	target.mu.Unlock()
	conn.polls[pollID] = struct{}{}
	r.subscriptions++

	r.updateGauges()
	slog.Debug("Connection subscribed", "connection_id", connID, "poll_id", pollID, "subscribers", size)
	return nil
}

// Unsubscribe removes the connection from a single poll.
func (r *Registry) Unsubscribe(connID domain.ConnectionID, pollID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	if _, member := conn.polls[pollID]; !member {
		return
	}
	r.leaveLocked(conn, pollID)
	if len(conn.polls) == 0 {
		delete(r.conns, connID)
	}
	r.updateGauges()
}

// UnsubscribeAll drops every membership of the connection and returns how many
// polls it left. Calling it again for the same connection returns 0.
func (r *Registry) UnsubscribeAll(connID domain.ConnectionID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return 0
	}

	left := len(conn.polls)
	for pollID := range conn.polls {
		r.leaveLocked(conn, pollID)
	}
	delete(r.conns, connID)

	r.updateGauges()
	return left
}

// Broadcast queues payload for every subscriber of pollID and returns how many
// accepted it. Subscribers that cannot keep up are evicted and closed.
func (r *Registry) Broadcast(pollID string, payload []byte) int {
	r.mu.RLock()
	target, ok := r.rooms[pollID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	delivered := 0
	var slow []domain.Subscriber
	for _, sub := range target.snapshot() {
		if sub.Send(payload) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}

	for _, sub := range slow {
		slog.Warn("Disconnecting slow client", "poll_id", pollID, "connection_id", sub.ID())
		if r.wsMetrics != nil {
			r.wsMetrics.SlowClientsEvicted.Inc()
		}
		r.UnsubscribeAll(sub.ID())
		sub.Close()
	}

	return delivered
}

// Send delivers payload privately to one subscribed connection.
func (r *Registry) Send(connID domain.ConnectionID, payload []byte) bool {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return conn.sub.Send(payload)
}

// SubscriberCount returns the number of connections watching pollID.
func (r *Registry) SubscriberCount(pollID string) int {
	r.mu.RLock()
	target, ok := r.rooms[pollID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	return len(target.members)
}

// Subscriptions returns the poll IDs the connection currently watches.
func (r *Registry) Subscriptions(connID domain.ConnectionID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	polls := make([]string, 0, len(conn.polls))
	for pollID := range conn.polls {
		polls = append(polls, pollID)
	}
	return polls
}

// PollCount returns the number of polls with at least one subscriber.
func (r *Registry) PollCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// leaveLocked removes conn from pollID's room; r.mu must be held for writing.
func (r *Registry) leaveLocked(conn *connection, pollID string) {
	delete(conn.polls, pollID)
	r.subscriptions--

	target, ok := r.rooms[pollID]
	if !ok {
		return
	}
	target.mu.Lock()
	delete(target.members, conn.sub.ID())
	empty := len(target.members) == 0
	target.mu.Unlock()

	if empty {
		delete(r.rooms, pollID)
		slog.Debug("Last subscriber left poll", "poll_id", pollID)
	}
}

func (r *Registry) updateGauges() {
	if r.wsMetrics == nil {
		return
	}
	r.wsMetrics.ActiveSubscriptions.Set(float64(r.subscriptions))
	r.wsMetrics.WatchedPolls.Set(float64(len(r.rooms)))
}
