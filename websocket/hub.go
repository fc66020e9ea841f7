// Package websocket provides the live messaging relay: a hub of conversation
// rooms fed by gorilla/websocket connections.
// file: websocket/hub.go
package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"playjosh/logger"
)

// ErrHubClosed is returned when joining a hub that is shutting down.
var ErrHubClosed = errors.New("messaging hub closed")

// Message is what every member of a conversation receives.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// Hub tracks the open connections of each conversation.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Connection]struct{}
	closed bool
	now    func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Connection]struct{}),
		now:   time.Now,
	}
}

// register adds c to its room.
func (h *Hub) register(c *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	room, ok := h.rooms[c.room]
	if !ok {
		room = make(map[*Connection]struct{})
		h.rooms[c.room] = room
	}
	room[c] = struct{}{}
	logger.Debug().Str("conversation", c.room).Str("user", c.userID).Int("members", len(room)).Msg("[hub] connection joined")
	return nil
}

// unregister removes c and closes its send queue. Safe to call more than once.
func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Connection) {
	room, ok := h.rooms[c.room]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.room)
	}
	logger.Debug().Str("conversation", c.room).Str("user", c.userID).Msg("[hub] connection left")
}

// broadcast queues payload for every member of room. Members whose queue is
// full are dropped rather than slowing the room down.
func (h *Hub) broadcast(room string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
			delivered++
		default:
			logger.Warn().Str("conversation", room).Str("user", c.userID).Msg("[hub] dropping slow connection")
			h.removeLocked(c)
		}
	}
	return delivered
}

// Publish stamps msg and relays it to the conversation. It returns the number
// of connections the message was queued for.
func (h *Hub) Publish(msg Message) (int, error) {
	if msg.SentAt.IsZero() {
		msg.SentAt = h.now().UTC()
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	return h.broadcast(msg.ConversationID, out), nil
}

// RoomSize is the number of open connections in a conversation.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects everyone and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, room := range h.rooms {
		for c := range room {
			h.removeLocked(c)
		}
	}
	logger.Info().Msg("[hub] closed")
}
