// file: websocket/connection_test.go

// Unit tests for connection.go. fakeConn stands in for a gorilla connection so
// the pumps can be exercised without network I/O.

package websocket

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	kind int
	data []byte
}

// fakeConn implements WSConn. Reads are served from inbox; writes are recorded.
type fakeConn struct {
	mu      sync.Mutex
	written []frame
	inbox   chan frame
	closed  bool
}

func (fc *fakeConn) WriteMessage(messageType int, data []byte) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return errors.New("use of closed connection")
	}
	fc.written = append(fc.written, frame{messageType, data})
	return nil
}

func (fc *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (fc *fakeConn) ReadMessage() (int, []byte, error) {
	if fc.inbox == nil {
		return 0, nil, errors.New("no inbox")
	}
	f, ok := <-fc.inbox
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	return f.kind, f.data, nil
}

func (fc *fakeConn) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.closed = true
	return nil
}

func (fc *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}
}

func (fc *fakeConn) SetReadLimit(int64)                {}
func (fc *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (fc *fakeConn) SetPongHandler(func(string) error) {}

func (fc *fakeConn) frames(kind int) []frame {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var out []frame
	for _, f := range fc.written {
		if f.kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestWritePump_SendsPings(t *testing.T) {
	old := pingPeriod
	pingPeriod = 10 * time.Millisecond
	t.Cleanup(func() { pingPeriod = old })

	h := NewHub()
	fc := &fakeConn{}
	c := newConnection(h, fc, "c1", "alice")
	require.NoError(t, h.register(c))

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(fc.frames(websocket.PingMessage)) > 0 }, time.Second, 5*time.Millisecond)

	h.unregister(c)
	<-done
	assert.Len(t, fc.frames(websocket.CloseMessage), 1)
}

func TestReadPump_StampsAndRelays(t *testing.T) {
	h := NewHub()
	listener := &Connection{hub: h, conn: &fakeConn{}, send: make(chan []byte, 4), room: "c1", userID: "bob"}
	require.NoError(t, h.register(listener))

	fc := &fakeConn{inbox: make(chan frame, 4)}
	sender := newConnection(h, fc, "c1", "alice")
	require.NoError(t, h.register(sender))

	fc.inbox <- frame{websocket.TextMessage, []byte(`not json`)}
	fc.inbox <- frame{websocket.TextMessage, []byte(`{"body":"   "}`)}
	fc.inbox <- frame{websocket.BinaryMessage, []byte(`{"body":"binary"}`)}
	fc.inbox <- frame{websocket.TextMessage, []byte(`{"body":" see you at training "}`)}
	close(fc.inbox)

	sender.readPump()

	require.Len(t, listener.send, 1)
	var got Message
	require.NoError(t, json.Unmarshal(<-listener.send, &got))
	assert.Equal(t, "see you at training", got.Body)
	assert.Equal(t, "alice", got.SenderID)
	assert.Equal(t, "c1", got.ConversationID)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.SentAt.IsZero())

	assert.Equal(t, 1, h.RoomSize("c1"), "sender leaves the room when its socket closes")
	assert.True(t, fc.closed)
}
