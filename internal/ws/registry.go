// Package ws holds the real-time layer: a per-user connection registry and
// a best-effort delivery dispatcher over WebSocket channels.
package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lodhi7862/bringit-app/internal/config"
)

const writeWait = 10 * time.Second

// Channel is the transport a registered connection writes to. Satisfied by
// *websocket.Conn; narrowed to an interface so registry behavior is testable
// without sockets.
type Channel interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// conn is one registered channel. Writes are serialized through mu; the
// websocket protocol allows a single concurrent writer.
type conn struct {
	ch Channel

	mu           sync.Mutex
	lastLiveness time.Time
}

func (c *conn) touch(now time.Time) {
	c.mu.Lock()
	c.lastLiveness = now
	c.mu.Unlock()
}

func (c *conn) liveness() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLiveness
}

// write sends one text frame with a write deadline.
func (c *conn) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ch.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ch.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) ping() error {
	return c.ch.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Registry tracks the live channels of connected users. A user may be
// connected from several devices at once, so entries are keyed by
// (userID, connID); dispatch fans out to every live connection of a user.
// Registering the same key again replaces (and closes) the superseded
// channel.
//
// The registry owns liveness: a sweep goroutine evicts connections that have
// been quiet for longer than the liveness timeout and pings the rest.
// Channel errors evict immediately; reconnecting is the client's job.
type Registry struct {
	log             *slog.Logger
	pingInterval    time.Duration
	livenessTimeout time.Duration

	mu    sync.RWMutex
	users map[string]map[string]*conn

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewRegistry creates a stopped registry. Call Start to begin the liveness
// sweep and Shutdown to release all connections.
func NewRegistry(cfg config.WebSocketConfig, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:             log.With("component", "ws.registry"),
		pingInterval:    cfg.PingInterval,
		livenessTimeout: cfg.LivenessTimeout,
		users:           make(map[string]map[string]*conn),
		stop:            make(chan struct{}),
	}
}

// Start launches the liveness sweep goroutine. Safe to call once.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		go r.sweepLoop()
	})
}

// Shutdown stops the sweep and closes every registered channel. Idempotent.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, conns := range r.users {
		for _, c := range conns {
			_ = c.ch.Close()
		}
		delete(r.users, userID)
	}
}

// Register adds a channel for the user. If the same (userID, connID) key is
// already present, the previous channel is closed and replaced.
func (r *Registry) Register(userID, connID string, ch Channel) {
	c := &conn{ch: ch, lastLiveness: time.Now()}

	r.mu.Lock()
	conns := r.users[userID]
	if conns == nil {
		conns = make(map[string]*conn)
		r.users[userID] = conns
	}
	old := conns[connID]
	conns[connID] = c
	r.mu.Unlock()

	if old != nil {
		_ = old.ch.Close()
		r.log.Info("superseded connection closed", "user_id", userID, "conn_id", connID)
	}

	r.log.Info("connection registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes and closes a connection. Idempotent: unknown keys are
// ignored.
func (r *Registry) Unregister(userID, connID string) {
	r.mu.Lock()
	c := r.removeLocked(userID, connID)
	r.mu.Unlock()

	if c != nil {
		_ = c.ch.Close()
		r.log.Info("connection unregistered", "user_id", userID, "conn_id", connID)
	}
}

// removeLocked deletes the entry and returns it. Caller holds r.mu.
func (r *Registry) removeLocked(userID, connID string) *conn {
	conns := r.users[userID]
	c, ok := conns[connID]
	if !ok {
		return nil
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
	}
	return c
}

// Touch records a liveness signal for a connection.
func (r *Registry) Touch(userID, connID string) {
	r.mu.RLock()
	c := r.users[userID][connID]
	r.mu.RUnlock()

	if c != nil {
		c.touch(time.Now())
	}
}

// IsLive reports whether the user has at least one registered connection.
func (r *Registry) IsLive(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Connections returns the number of live connections for a user.
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// send writes a payload to every connection of the user. Returns true when
// at least one write succeeded. Failing connections are evicted.
func (r *Registry) send(userID string, payload []byte) bool {
	type entry struct {
		connID string
		c      *conn
	}

	r.mu.RLock()
	entries := make([]entry, 0, len(r.users[userID]))
	for connID, c := range r.users[userID] {
		entries = append(entries, entry{connID, c})
	}
	r.mu.RUnlock()

	delivered := false
	for _, e := range entries {
		if err := e.c.write(payload); err != nil {
			r.log.Warn("send failed, evicting connection",
				"user_id", userID, "conn_id", e.connID, "error", err)
			r.Unregister(userID, e.connID)
			continue
		}
		delivered = true
	}
	return delivered
}

// sendTo writes a payload to one specific connection.
func (r *Registry) sendTo(userID, connID string, payload []byte) bool {
	r.mu.RLock()
	c := r.users[userID][connID]
	r.mu.RUnlock()

	if c == nil {
		return false
	}
	if err := c.write(payload); err != nil {
		r.log.Warn("send failed, evicting connection",
			"user_id", userID, "conn_id", connID, "error", err)
		r.Unregister(userID, connID)
		return false
	}
	return true
}

// broadcast writes a payload to every registered connection.
func (r *Registry) broadcast(payload []byte) {
	r.mu.RLock()
	userIDs := make([]string, 0, len(r.users))
	for userID := range r.users {
		userIDs = append(userIDs, userID)
	}
	r.mu.RUnlock()

	for _, userID := range userIDs {
		r.send(userID, payload)
	}
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.stop:
			return
		}
	}
}

// sweep evicts connections quiet for longer than the liveness timeout and
// pings the rest. Exposed to tests through sweep(now).
func (r *Registry) sweep(now time.Time) {
	type entry struct {
		userID, connID string
		c              *conn
	}

	var stale, live []entry

	r.mu.RLock()
	for userID, conns := range r.users {
		for connID, c := range conns {
			e := entry{userID, connID, c}
			if now.Sub(c.liveness()) > r.livenessTimeout {
				stale = append(stale, e)
			} else {
				live = append(live, e)
			}
		}
	}
	r.mu.RUnlock()

	for _, e := range stale {
		r.log.Info("closing stale connection", "user_id", e.userID, "conn_id", e.connID)
		r.Unregister(e.userID, e.connID)
	}

	for _, e := range live {
		if err := e.c.ping(); err != nil {
			r.log.Warn("ping failed, evicting connection",
				"user_id", e.userID, "conn_id", e.connID, "error", err)
			r.Unregister(e.userID, e.connID)
		}
	}
}
