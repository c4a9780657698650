package websocket

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limits bounds live-channel resource usage. Zero values disable a limit.
type Limits struct {
	MaxConnections      int
	MaxConnectionsPerIP int
	// VoteRate is the sustained votes per second allowed per connection.
	VoteRate  float64
	VoteBurst int
}

// globalConnectionLimiter limits total concurrent connections per instance.
type globalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func newGlobalConnectionLimiter(maxConns int) *globalConnectionLimiter {
	return &globalConnectionLimiter{max: int64(maxConns)}
}

// acquire reserves a slot; it always succeeds when no maximum is set.
func (l *globalConnectionLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if l.max > 0 && current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalConnectionLimiter) release() {
	l.current.Add(-1)
}

// ipConnectionLimiter limits concurrent connections per client IP.
type ipConnectionLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func newIPConnectionLimiter(maxPer int) *ipConnectionLimiter {
	return &ipConnectionLimiter{
		ips:    make(map[string]int),
		maxPer: maxPer,
	}
}

func (l *ipConnectionLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPer > 0 && l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipConnectionLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *ipConnectionLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}

// newVoteLimiter returns the token bucket for one connection, or nil when
// votes are not rate limited.
func (l Limits) newVoteLimiter() *rate.Limiter {
	if l.VoteRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(l.VoteRate), max(l.VoteBurst, 1))
}
