// Package websocket provides the live messaging relay.
// file: websocket/connection.go
package websocket

import (
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"playjosh/logger"
)

// WSConn is the part of *websocket.Conn a Connection uses.
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	ReadMessage() (int, []byte, error)
	Close() error
	RemoteAddr() net.Addr
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// Timing and size limits. Variables so tests can shorten them.
var (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

const (
	maxMessageSize = 4096
	sendQueueSize  = 64
)

// Connection is one participant's socket in a conversation.
type Connection struct {
	hub    *Hub
	conn   WSConn
	send   chan []byte
	room   string
	userID string
}

func newConnection(hub *Hub, conn WSConn, room, userID string) *Connection {
	return &Connection{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		room:   room,
		userID: userID,
	}
}

// inbound is what clients send.
type inbound struct {
	Body string `json:"body"`
}

// readPump relays inbound messages to the room until the socket fails.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Str("remote", c.conn.RemoteAddr().String()).Msg("[readPump] read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			logger.Debug().Err(err).Str("user", c.userID).Msg("[readPump] ignoring invalid JSON")
			continue
		}
		body := strings.TrimSpace(in.Body)
		if body == "" {
			continue
		}

		if _, err := c.hub.Publish(Message{
			ID:             uuid.NewString(),
			ConversationID: c.room,
			SenderID:       c.userID,
			Body:           body,
		}); err != nil {
			logger.Error().Err(err).Msg("[readPump] failed to publish message")
		}
	}
}

// writePump drains the send queue and keeps the peer alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn().Err(err).Str("user", c.userID).Msg("[writePump] write error")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Str("user", c.userID).Msg("[writePump] ping error")
				return
			}
		}
	}
}
