// Package websocket provides the live messaging relay.
// file: websocket/handler.go
package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"playjosh/logger"
	"playjosh/middleware"
)

// Handler upgrades /messages/live requests and attaches them to the hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts browser connections from the given origins. With no
// origins configured only same-host connections are accepted.
func NewHandler(hub *Hub, allowedOrigins ...string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			allowed[strings.ToLower(u.Scheme+"://"+u.Host)] = true
		}
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if len(allowed) == 0 {
					return strings.EqualFold(u.Host, r.Host)
				}
				return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
			},
		},
	}
}

// ServeLive joins the caller to ?conversation=<id>, where id is built by
// ConversationID from its participants. Only participants may join. The guard
// has already required an onboarded session; the check here covers direct
// mounting.
func (h *Handler) ServeLive(c *gin.Context) {
	current := middleware.CurrentSession(c)
	if !current.Authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in to join conversations."})
		return
	}
	room := strings.TrimSpace(c.Query("conversation"))
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation is required"})
		return
	}
	member, err := isParticipant(room, current.User.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation is invalid"})
		return
	}
	if !member {
		logger.Ctx(c.Request.Context()).Warn().Str("conversation", room).Str("user", current.User.ID).
			Msg("[ServeLive] rejected non-participant")
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not part of this conversation."})
		return
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logger.Ctx(c.Request.Context()).Warn().Err(err).Msg("[ServeLive] websocket upgrade failed")
		return
	}

	conn := newConnection(h.hub, wsConn, room, current.User.ID)
	if err := h.hub.register(conn); err != nil {
		_ = wsConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = wsConn.Close()
		return
	}
	logger.Ctx(c.Request.Context()).Info().Str("conversation", room).Str("user", current.User.ID).Msg("[ServeLive] joined conversation")

	go conn.writePump()
	go conn.readPump()
}
