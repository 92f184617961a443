package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodhi7862/bringit-app/protocol"
)

func TestDispatcher_SendToUser_DeliversToConnectedUser(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	d := NewDispatcher(r, nil)

	c := &fakeChannel{}
	r.Register("u1", "dev1", c)

	ok := d.SendToUser("u1", protocol.Notification("Hi", "there", nil))
	require.True(t, ok)
	require.Equal(t, 1, c.frameCount())

	var ev protocol.Event
	require.NoError(t, json.Unmarshal(c.frames[0], &ev))
	assert.Equal(t, protocol.EventNotification, ev.Type)
	assert.Equal(t, "Hi", ev.Title)
}

func TestDispatcher_SendToUser_OfflineUserReturnsFalse(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	d := NewDispatcher(r, nil)

	assert.False(t, d.SendToUser("nobody", protocol.Notification("Hi", "there", nil)))
}

func TestDispatcher_SendToUsers_CountsSum(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	d := NewDispatcher(r, nil)

	r.Register("u1", "dev1", &fakeChannel{})
	r.Register("u3", "dev1", &fakeChannel{})

	ids := []string{"u1", "u2", "u3", "u4"}
	sent, failed := d.SendToUsers(ids, protocol.Notification("Hi", "all", nil))

	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, failed)
	assert.Equal(t, len(ids), sent+failed)
}

func TestDispatcher_SendToUsers_EmptyList(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	d := NewDispatcher(r, nil)

	sent, failed := d.SendToUsers(nil, protocol.Notification("Hi", "all", nil))
	assert.Zero(t, sent)
	assert.Zero(t, failed)
}

func TestDispatcher_Broadcast_ReachesAllUsers(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)
	d := NewDispatcher(r, nil)

	c1 := &fakeChannel{}
	c2 := &fakeChannel{}
	r.Register("u1", "dev1", c1)
	r.Register("u2", "dev1", c2)

	d.Broadcast(protocol.Notification("maintenance", "back soon", nil))

	assert.Equal(t, 1, c1.frameCount())
	assert.Equal(t, 1, c2.frameCount())
}
