// file: websocket/hub_test.go
package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joined(t *testing.T, h *Hub, room, user string, queue int) *Connection {
	t.Helper()
	c := &Connection{hub: h, conn: &fakeConn{}, send: make(chan []byte, queue), room: room, userID: user}
	require.NoError(t, h.register(c))
	return c
}

func TestHub_BroadcastStaysInRoom(t *testing.T) {
	h := NewHub()
	a := joined(t, h, "c1", "alice", 4)
	b := joined(t, h, "c1", "bob", 4)
	other := joined(t, h, "c2", "carol", 4)

	n := h.broadcast("c1", []byte("hi"))

	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("hi"), <-a.send)
	assert.Equal(t, []byte("hi"), <-b.send)
	assert.Len(t, other.send, 0)
}

func TestHub_DropsSlowConnection(t *testing.T) {
	h := NewHub()
	slow := joined(t, h, "c1", "slow", 1)
	fast := joined(t, h, "c1", "fast", 4)
	slow.send <- []byte("backlog")

	n := h.broadcast("c1", []byte("next"))

	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.RoomSize("c1"))
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "slow connection queue should be closed")
	assert.Equal(t, []byte("next"), <-fast.send)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := NewHub()
	c := joined(t, h, "c1", "alice", 1)

	h.unregister(c)
	h.unregister(c)

	assert.Equal(t, 0, h.RoomSize("c1"))
}

func TestHub_PublishStampsTime(t *testing.T) {
	h := NewHub()
	fixed := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }
	c := joined(t, h, "c1", "alice", 1)

	n, err := h.Publish(Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var got Message
	require.NoError(t, json.Unmarshal(<-c.send, &got))
	assert.Equal(t, "hello", got.Body)
	assert.True(t, fixed.Equal(got.SentAt))
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	c := joined(t, h, "c1", "alice", 1)

	h.Close()

	_, open := <-c.send
	assert.False(t, open)
	assert.ErrorIs(t, h.register(&Connection{hub: h, send: make(chan []byte), room: "c1"}), ErrHubClosed)
}
