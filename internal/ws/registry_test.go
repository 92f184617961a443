package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodhi7862/bringit-app/internal/config"
)

// fakeChannel records writes and can be told to fail.
type fakeChannel struct {
	mu       sync.Mutex
	frames   [][]byte
	pings    int
	closed   bool
	writeErr error
}

func (f *fakeChannel) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeChannel) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if messageType == websocket.PingMessage {
		f.pings++
	}
	return nil
}

func (f *fakeChannel) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeChannel) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(config.WebSocketConfig{
		PingInterval:    30 * time.Second,
		LivenessTimeout: 60 * time.Second,
	}, nil)
	t.Cleanup(r.Shutdown)
	return r
}

func TestRegistry_Register_ReplacesAndClosesSupersededChannel(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	c1 := &fakeChannel{}
	c2 := &fakeChannel{}

	r.Register("u1", "dev1", c1)
	r.Register("u1", "dev1", c2)

	assert.True(t, c1.isClosed(), "superseded channel must be closed")
	assert.False(t, c2.isClosed())
	assert.True(t, r.IsLive("u1"))
	assert.Equal(t, 1, r.Connections("u1"))

	// Writes land on the replacement only.
	require.True(t, r.send("u1", []byte("hi")))
	assert.Equal(t, 0, c1.frameCount())
	assert.Equal(t, 1, c2.frameCount())
}

func TestRegistry_MultiDevice_FansOut(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	phone := &fakeChannel{}
	tablet := &fakeChannel{}
	r.Register("u1", "phone", phone)
	r.Register("u1", "tablet", tablet)

	assert.Equal(t, 2, r.Connections("u1"))
	require.True(t, r.send("u1", []byte("hi")))
	assert.Equal(t, 1, phone.frameCount())
	assert.Equal(t, 1, tablet.frameCount())
}

func TestRegistry_Unregister_Idempotent(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	c := &fakeChannel{}
	r.Register("u1", "dev1", c)

	r.Unregister("u1", "dev1")
	assert.True(t, c.isClosed())
	assert.False(t, r.IsLive("u1"))

	// Unknown keys are ignored.
	r.Unregister("u1", "dev1")
	r.Unregister("ghost", "dev9")
	assert.False(t, r.IsLive("u1"))
}

func TestRegistry_Send_EvictsFailingConnection(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	dead := &fakeChannel{writeErr: errors.New("broken pipe")}
	live := &fakeChannel{}
	r.Register("u1", "dead", dead)
	r.Register("u1", "live", live)

	assert.True(t, r.send("u1", []byte("hi")))
	assert.Equal(t, 1, r.Connections("u1"), "failing connection must be evicted")
	assert.True(t, dead.isClosed())
}

func TestRegistry_Send_AllFailed(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	dead := &fakeChannel{writeErr: errors.New("broken pipe")}
	r.Register("u1", "dead", dead)

	assert.False(t, r.send("u1", []byte("hi")))
	assert.False(t, r.IsLive("u1"))
}

func TestRegistry_Sweep_EvictsStaleAndPingsFresh(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	stale := &fakeChannel{}
	fresh := &fakeChannel{}
	r.Register("u1", "stale", stale)
	r.Register("u2", "fresh", fresh)

	// Age the first connection beyond the liveness timeout.
	r.mu.RLock()
	r.users["u1"]["stale"].touch(time.Now().Add(-2 * time.Minute))
	r.mu.RUnlock()

	r.sweep(time.Now())

	assert.False(t, r.IsLive("u1"), "stale connection evicted")
	assert.True(t, stale.isClosed())
	assert.True(t, r.IsLive("u2"), "fresh connection kept")
	assert.Equal(t, 1, fresh.pingCount(), "fresh connection pinged")
}

func TestRegistry_Sweep_TouchKeepsConnectionAlive(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	c := &fakeChannel{}
	r.Register("u1", "dev1", c)

	r.mu.RLock()
	r.users["u1"]["dev1"].touch(time.Now().Add(-2 * time.Minute))
	r.mu.RUnlock()

	// A liveness signal arrives just before the sweep.
	r.Touch("u1", "dev1")
	r.sweep(time.Now())

	assert.True(t, r.IsLive("u1"))
}

func TestRegistry_Shutdown_ClosesEverything(t *testing.T) {
	t.Parallel()
	r := NewRegistry(config.WebSocketConfig{
		PingInterval:    30 * time.Second,
		LivenessTimeout: 60 * time.Second,
	}, nil)

	c1 := &fakeChannel{}
	c2 := &fakeChannel{}
	r.Register("u1", "a", c1)
	r.Register("u2", "b", c2)

	r.Start()
	r.Shutdown()
	r.Shutdown() // idempotent

	assert.True(t, c1.isClosed())
	assert.True(t, c2.isClosed())
	assert.False(t, r.IsLive("u1"))
	assert.False(t, r.IsLive("u2"))
}
