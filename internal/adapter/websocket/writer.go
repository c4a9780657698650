package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	idleTimeout       = 5 * time.Minute
	messageBufferSize = 16
)

// clientWriter owns all writes to one connection. Frames are queued on a
// bounded buffer and flushed by a single goroutine, so producers never block.
type clientWriter struct {
	id            domain.ConnectionID
	connection    *websocket.Conn
	clock         clockwork.Clock
	wsMetrics     *metrics.WebSocketMetrics
	sendChannel   chan []byte
	doneChannel   chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	lastActivity  time.Time
	activityMutex sync.Mutex
}

func newClientWriter(id domain.ConnectionID, connection *websocket.Conn, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *clientWriter {
	cw := &clientWriter{
		id:           id,
		connection:   connection,
		clock:        clock,
		wsMetrics:    wsMetrics,
		sendChannel:  make(chan []byte, messageBufferSize),
		doneChannel:  make(chan struct{}),
		lastActivity: clock.Now(),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) ID() domain.ConnectionID {
	return cw.id
}

// Send queues payload without blocking. It returns false when the buffer is
// full or the writer has stopped.
func (cw *clientWriter) Send(payload []byte) bool {
	select {
	case <-cw.doneChannel:
		return false
	default:
	}

	select {
	case cw.sendChannel <- payload:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the connection without waiting for the
// write goroutine, so it is safe to call from a broadcast path.
func (cw *clientWriter) Close() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = cw.connection.Close()
				return
			}
			if cw.wsMetrics != nil {
				cw.wsMetrics.MessagesSent.Inc()
			}
		case <-ticker.Chan():
			if cw.checkIdleTimeout() {
				_ = cw.connection.Close()
				return
			}

			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if cw.wsMetrics != nil {
					cw.wsMetrics.PingFailures.Inc()
				}
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// stop closes the connection and waits for the write goroutine to exit.
func (cw *clientWriter) stop() {
	cw.Close()
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// The close frame must not race a pending write.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.recordActivity()
		return nil
	})
}

// Network deadlines are wall-clock; only the ping and idle schedule follows cw.clock.
func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(time.Now().Add(pongDeadline))
}

// recordActivity is called from the read goroutine on pongs and inbound frames.
func (cw *clientWriter) recordActivity() {
	cw.updateReadDeadline()
	cw.activityMutex.Lock()
	defer cw.activityMutex.Unlock()
	cw.lastActivity = cw.clock.Now()
}

// checkIdleTimeout reports whether the connection has been silent for too long.
func (cw *clientWriter) checkIdleTimeout() bool {
	cw.activityMutex.Lock()
	idleDuration := cw.clock.Since(cw.lastActivity)
	cw.activityMutex.Unlock()

	if idleDuration >= idleTimeout {
		if cw.wsMetrics != nil {
			cw.wsMetrics.IdleDisconnects.Inc()
		}
		return true
	}
	return false
}
