package client

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodhi7862/bringit-app/internal/config"
	"github.com/lodhi7862/bringit-app/internal/ws"
	"github.com/lodhi7862/bringit-app/protocol"
)

// newServerStack runs the real registry and channel handler.
func newServerStack(t *testing.T) (*httptest.Server, *ws.Dispatcher) {
	t.Helper()
	reg := ws.NewRegistry(config.WebSocketConfig{
		PingInterval:    30 * time.Second,
		LivenessTimeout: 60 * time.Second,
	}, nil)
	t.Cleanup(reg.Shutdown)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(reg, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, ws.NewDispatcher(reg, nil)
}

func newTestAgent(t *testing.T, serverURL string) *Agent {
	t.Helper()
	a := NewAgent(serverURL, WithReconnectDelay(20*time.Millisecond))
	t.Cleanup(a.Disconnect)
	return a
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, msg)
}

func TestWSURL_SchemeMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:3000", "ws://localhost:3000/ws?userId=u1"},
		{"https://bringit.example.com", "wss://bringit.example.com/ws?userId=u1"},
		{"bringit.example.com", "wss://bringit.example.com/ws?userId=u1"},
		{"ws://localhost:3000", "ws://localhost:3000/ws?userId=u1"},
	}
	for _, tc := range cases {
		got, err := wsURL(tc.in, "u1")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := wsURL("ftp://example.com", "u1")
	assert.Error(t, err)
}

func TestAgent_ConnectReceivesConnectedFrame(t *testing.T) {
	t.Parallel()
	srv, _ := newServerStack(t)
	a := newTestAgent(t, srv.URL)

	var connected atomic.Bool
	a.On(protocol.EventConnected, func(ev protocol.Event) {
		if ev.UserID == "u1" {
			connected.Store(true)
		}
	})

	a.Connect("u1")
	waitFor(t, connected.Load, "connected frame not delivered")
	assert.True(t, a.IsConnected())

	// Connecting again while open is a no-op.
	a.Connect("u1")
	assert.Equal(t, StateOpen, a.State())
}

func TestAgent_WildcardSeesEveryEvent(t *testing.T) {
	t.Parallel()
	srv, dispatch := newServerStack(t)
	a := newTestAgent(t, srv.URL)

	var exact, wildcard atomic.Int32
	a.On(protocol.EventNotification, func(protocol.Event) { exact.Add(1) })
	a.On(EventAll, func(protocol.Event) { wildcard.Add(1) })

	a.Connect("u1")
	waitFor(t, a.IsConnected, "agent did not open")

	require.True(t, dispatch.SendToUser("u1", protocol.Notification("t", "b", nil)))

	waitFor(t, func() bool { return exact.Load() == 1 }, "exact handler not called")
	// connected + notification
	waitFor(t, func() bool { return wildcard.Load() == 2 }, "wildcard handler missed an event")
}

func TestAgent_PingIsAnswered(t *testing.T) {
	t.Parallel()
	srv, _ := newServerStack(t)
	a := newTestAgent(t, srv.URL)

	var pongs atomic.Int32
	a.On(protocol.EventPong, func(protocol.Event) { pongs.Add(1) })

	a.Connect("u1")
	waitFor(t, a.IsConnected, "agent did not open")

	a.Send(protocol.Ping())
	waitFor(t, func() bool { return pongs.Load() == 1 }, "pong not received")
}

func TestAgent_SendWhileClosedIsDropped(t *testing.T) {
	t.Parallel()
	a := newTestAgent(t, "http://localhost:0")

	assert.NotPanics(t, func() { a.Send(protocol.Ping()) })
	assert.Equal(t, StateIdle, a.State())
}

func TestAgent_ReconnectsAfterServerClose(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		sock, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// First connection is dropped right away.
			_ = sock.Close()
			return
		}
		_ = sock.WriteJSON(protocol.Connected("u1"))
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	a := newTestAgent(t, srv.URL)
	a.Connect("u1")

	waitFor(t, func() bool { return dials.Load() >= 2 && a.IsConnected() }, "agent did not reconnect")
}

func TestAgent_ReconnectCeiling(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	a := newTestAgent(t, srv.URL)
	a.Connect("u1")

	waitFor(t, func() bool { return a.State() == StateDisabled }, "ceiling never reached")

	// One explicit dial plus five automatic retries, then nothing more.
	settled := dials.Load()
	assert.Equal(t, int32(6), settled)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, dials.Load(), "agent kept dialing past the ceiling")
}

// Switching users while a reconnect is pending must orphan the old retry:
// every dial after the explicit Connect carries the new user, never the
// previous one.
func TestAgent_ConnectSupersedesPendingReconnect(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var dialed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dialed = append(dialed, r.URL.Query().Get("userId"))
		mu.Unlock()
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	a := newTestAgent(t, srv.URL)
	a.Connect("u1")
	// The failed dial has scheduled a retry for u1 by now.
	a.Connect("u2")

	waitFor(t, func() bool { return a.State() == StateDisabled }, "ceiling never reached")

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, dialed, "u2")
	switched := false
	for _, id := range dialed {
		if id == "u2" {
			switched = true
		}
		if switched {
			assert.Equal(t, "u2", id, "stale retry dialed the previous user: %v", dialed)
		}
	}
}

func TestAgent_ExplicitConnectAfterCeiling(t *testing.T) {
	t.Parallel()

	var reject atomic.Bool
	reject.Store(true)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reject.Load() {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		sock, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = sock.WriteJSON(protocol.Connected("u1"))
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	a := newTestAgent(t, srv.URL)
	a.Connect("u1")
	waitFor(t, func() bool { return a.State() == StateDisabled }, "ceiling never reached")

	// The network comes back; only an explicit Connect re-arms the agent.
	reject.Store(false)
	a.Connect("u1")
	waitFor(t, a.IsConnected, "explicit connect did not recover")
}

func TestAgent_DisconnectIsIdempotentAndStopsReconnect(t *testing.T) {
	t.Parallel()
	srv, _ := newServerStack(t)
	a := newTestAgent(t, srv.URL)

	a.Connect("u1")
	waitFor(t, a.IsConnected, "agent did not open")

	a.Disconnect()
	assert.Equal(t, StateClosed, a.State())
	a.Disconnect()
	assert.Equal(t, StateClosed, a.State())

	// No automatic reconnect after a deliberate disconnect.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateClosed, a.State())
}

func TestAgent_MalformedFrameIsDroppedWithoutClosing(t *testing.T) {
	t.Parallel()

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = sock.WriteJSON(protocol.Connected("u1"))
		_ = sock.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = sock.WriteJSON(protocol.Notification("after", "b", nil))
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	a := newTestAgent(t, srv.URL)
	var notified atomic.Bool
	a.On(protocol.EventNotification, func(ev protocol.Event) {
		if ev.Title == "after" {
			notified.Store(true)
		}
	})

	a.Connect("u1")
	waitFor(t, notified.Load, "event after malformed frame not delivered")
	assert.True(t, a.IsConnected())
}
