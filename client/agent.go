// Package client is the Go client library for a bringit server: a
// reconnecting WebSocket agent with typed event subscriptions, a local task
// mirror with snapshot reconciliation, and an HTTP client for the REST
// surface.
package client

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lodhi7862/bringit-app/protocol"
)

// State is the agent's connection state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	// StateDisabled means the reconnect ceiling was reached; only an
	// explicit Connect leaves it.
	StateDisabled State = "disabled"
)

const (
	defaultMaxAttempts    = 5
	defaultReconnectDelay = 3 * time.Second
)

// Agent maintains one logical channel to the server, surviving transient
// network loss. On an unexpected close it reconnects after a fixed delay,
// up to a ceiling of consecutive failures; a successful open resets the
// counter.
type Agent struct {
	serverURL   string
	subs        *Subscriptions
	dialer      *websocket.Dialer
	log         *slog.Logger
	maxAttempts int
	delay       time.Duration

	mu       sync.Mutex
	state    State
	userID   string
	sock     *websocket.Conn
	attempts int
	gen      int
	timer    *time.Timer

	writeMu sync.Mutex
}

// Option configures an Agent.
type Option func(*Agent)

// WithSubscriptions injects a pre-built handler registry.
func WithSubscriptions(s *Subscriptions) Option {
	return func(a *Agent) { a.subs = s }
}

// WithLogger sets the agent's logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) { a.log = log }
}

// WithReconnectDelay overrides the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(a *Agent) { a.delay = d }
}

// NewAgent creates an agent for the given server address. The address may
// use an http, https, ws or wss scheme; a bare host is treated as wss.
func NewAgent(serverURL string, opts ...Option) *Agent {
	a := &Agent{
		serverURL:   serverURL,
		dialer:      websocket.DefaultDialer,
		log:         slog.Default(),
		maxAttempts: defaultMaxAttempts,
		delay:       defaultReconnectDelay,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.subs == nil {
		a.subs = NewSubscriptions(a.log)
	}
	a.log = a.log.With("component", "agent")
	return a
}

// Subscriptions returns the handler registry backing On.
func (a *Agent) Subscriptions() *Subscriptions { return a.subs }

// On registers a handler for the given event type and returns its
// unsubscribe function.
func (a *Agent) On(t protocol.EventType, fn Handler) func() {
	return a.subs.On(t, fn)
}

// State returns the current connection state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsConnected reports whether the channel is open.
func (a *Agent) IsConnected() bool {
	return a.State() == StateOpen
}

// Connect opens the channel for the given user. A no-op when already open
// or connecting. An explicit Connect always re-arms reconnection, even
// after the ceiling was reached.
func (a *Agent) Connect(userID string) {
	a.mu.Lock()
	if a.state == StateOpen || a.state == StateConnecting {
		a.mu.Unlock()
		return
	}
	// Supersede any retry still pending for the previous session; there
	// is one pending timer at most, and it is never for a stale user.
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.userID = userID
	a.attempts = 0
	a.state = StateConnecting
	a.mu.Unlock()

	a.dial(userID)
}

// Disconnect closes the channel and suppresses automatic reconnection.
// Safe to call repeatedly.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.attempts = a.maxAttempts
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	// The generation bump makes the read loop's exit a stale event.
	a.gen++
	if a.sock != nil {
		_ = a.sock.Close()
		a.sock = nil
	}
	a.state = StateClosed
}

// Send writes an event to the server. Dropped with a warning when the
// channel is not open; the agent never queues.
func (a *Agent) Send(ev protocol.Event) {
	a.mu.Lock()
	sock := a.sock
	open := a.state == StateOpen
	a.mu.Unlock()

	if !open || sock == nil {
		a.log.Warn("dropping event, channel not open", "type", ev.Type)
		return
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := sock.WriteJSON(ev); err != nil {
		a.log.Warn("writing event failed", "type", ev.Type, "error", err)
	}
}

func (a *Agent) dial(userID string) {
	target, err := wsURL(a.serverURL, userID)
	if err != nil {
		a.log.Error("invalid server address", "url", a.serverURL, "error", err)
		a.handleFailure()
		return
	}

	sock, resp, err := a.dialer.Dial(target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		a.log.Warn("connection failed", "error", err)
		a.handleFailure()
		return
	}

	a.mu.Lock()
	if a.state != StateConnecting {
		// Disconnect won the race while we were dialing.
		a.mu.Unlock()
		_ = sock.Close()
		return
	}
	a.sock = sock
	a.state = StateOpen
	a.attempts = 0
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	a.log.Info("channel open", "user_id", userID)
	go a.readLoop(sock, gen)
}

func (a *Agent) readLoop(sock *websocket.Conn, gen int) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			a.handleClose(gen, err)
			return
		}
		ev, err := protocol.Parse(data)
		if err != nil {
			a.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		a.subs.Dispatch(ev)
	}
}

// handleClose reacts to the read loop ending. Stale generations are exits
// of already superseded or deliberately closed channels and are ignored.
func (a *Agent) handleClose(gen int, err error) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	if a.sock != nil {
		_ = a.sock.Close()
		a.sock = nil
	}
	a.mu.Unlock()

	a.log.Warn("channel closed", "error", err)
	a.handleFailure()
}

// handleFailure counts a failed attempt and schedules the next one, or
// disables the agent once the ceiling is reached.
func (a *Agent) handleFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.userID == "" || a.attempts >= a.maxAttempts {
		a.state = StateDisabled
		a.log.Warn("reconnect ceiling reached, real-time updates stalled")
		return
	}

	a.attempts++
	a.state = StateClosed
	attempt := a.attempts
	userID := a.userID
	gen := a.gen
	a.log.Info("scheduling reconnect", "attempt", attempt, "delay", a.delay)

	a.timer = time.AfterFunc(a.delay, func() {
		a.mu.Lock()
		// A Disconnect or fresh Connect in the meantime owns the agent now.
		if a.state != StateClosed || a.gen != gen {
			a.mu.Unlock()
			return
		}
		a.state = StateConnecting
		a.mu.Unlock()
		a.dial(userID)
	})
}

// wsURL derives the channel URL from the configured server address: http
// maps to ws, https to wss, and an address without a scheme is assumed to
// be a TLS host.
func wsURL(serverURL, userID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing server address: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https", "":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		// "example.com" parses as a path when there is no scheme.
		u.Host = u.Path
		u.Path = ""
	}

	u.Path = "/ws"
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
