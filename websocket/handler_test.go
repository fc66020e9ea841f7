// file: websocket/handler_test.go
package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"playjosh/middleware"
	"playjosh/models"
)

// setupLiveServer mounts the handler behind a stand-in for the guard that
// authenticates the user named in the X-Test-User header.
func setupLiveServer(t *testing.T, hub *Hub, origins ...string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		s := models.Anonymous()
		if id := c.GetHeader("X-Test-User"); id != "" {
			s = models.Session{Authenticated: true, User: models.User{ID: id}}
		}
		c.Set(middleware.SessionKey, s)
		c.Next()
	})
	router.GET("/messages/live", NewHandler(hub, origins...).ServeLive)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user, conversation string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/messages/live?conversation=" + conversation
	header := http.Header{"X-Test-User": {user}}
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeLive_RelaysWithinConversation(t *testing.T) {
	hub := NewHub()
	srv := setupLiveServer(t, hub)

	room := ConversationID("bob", "alice")
	alice := dial(t, srv, "alice", room)
	bob := dial(t, srv, "bob", room)
	carol := dial(t, srv, "carol", ConversationID("carol", "dave"))
	require.Eventually(t, func() bool { return hub.RoomSize(room) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, alice.WriteJSON(map[string]string{"body": "kickoff at 9"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got Message
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "kickoff at 9", got.Body)
		assert.Equal(t, "alice", got.SenderID)
		assert.Equal(t, "alice:bob", got.ConversationID)
	}

	require.NoError(t, carol.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := carol.ReadMessage()
	assert.Error(t, err, "other conversations must not receive the message")
}

func TestServeLive_LeavesOnDisconnect(t *testing.T) {
	hub := NewHub()
	srv := setupLiveServer(t, hub)

	conn := dial(t, srv, "alice", "alice:bob")
	require.Eventually(t, func() bool { return hub.RoomSize("alice:bob") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return hub.RoomSize("alice:bob") == 0 }, time.Second, 5*time.Millisecond)
}

func getLive(t *testing.T, srv *httptest.Server, user, query string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/messages/live"+query, nil)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestServeLive_RejectsBadRequests(t *testing.T) {
	srv := setupLiveServer(t, NewHub())

	assert.Equal(t, http.StatusUnauthorized, getLive(t, srv, "", "?conversation=alice:bob"))
	assert.Equal(t, http.StatusBadRequest, getLive(t, srv, "alice", ""))
	assert.Equal(t, http.StatusBadRequest, getLive(t, srv, "alice", "?conversation=alice"))
	assert.Equal(t, http.StatusBadRequest, getLive(t, srv, "alice", "?conversation=bob:alice"))
	assert.Equal(t, http.StatusBadRequest, getLive(t, srv, "alice", "?conversation=dm-alice-bob"))
}

func TestServeLive_RejectsNonParticipant(t *testing.T) {
	hub := NewHub()
	srv := setupLiveServer(t, hub)
	room := ConversationID("alice", "bob")

	alice := dial(t, srv, "alice", room)
	require.Eventually(t, func() bool { return hub.RoomSize(room) == 1 }, time.Second, 5*time.Millisecond)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/messages/live?conversation=" + room
	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"X-Test-User": {"mallory"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	delivered, err := hub.Publish(Message{ConversationID: room, SenderID: "alice", Body: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, hub.RoomSize(room))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Message
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "secret", got.Body)
}

func TestServeLive_ChecksOrigin(t *testing.T) {
	srv := setupLiveServer(t, NewHub(), "https://playjosh.test")
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/messages/live?conversation=alice:bob"

	header := http.Header{"X-Test-User": {"alice"}, "Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://playjosh.test")
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}

func TestServeLive_HubClosed(t *testing.T) {
	hub := NewHub()
	hub.Close()
	srv := setupLiveServer(t, hub)

	conn := dial(t, srv, "alice", "alice:bob")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()

	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}
