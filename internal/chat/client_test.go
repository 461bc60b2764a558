package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
)

func newChatServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	config := ClientConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 1024,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := domain.Identity{}
		if name := r.URL.Query().Get("user"); name != "" {
			identity = domain.Identity{UserID: uint(len(name)), Username: name}
		}

		session, err := h.Connect(r.Context(), identity, strings.TrimPrefix(r.URL.Path, "/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			session.Close(r.Context())
			return
		}
		NewClient(conn, session, config).Serve(r.Context())
	}))
	t.Cleanup(srv.Close)

	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, nil)
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))

	return frame
}

func TestClient_EndToEnd(t *testing.T) {
	h, hub := newTestHandler(allowAll(), &memoryStore{})
	srv := newChatServer(t, h)

	alice, _, err := dial(t, srv, "/7?user=alice")
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := dial(t, srv, "/7?user=bob")
	require.NoError(t, err)
	defer bob.Close()

	assert.Equal(t, "history", readJSON(t, alice)["type"])
	assert.Equal(t, "history", readJSON(t, bob)["type"])
	require.Eventually(t, func() bool { return hub.MemberCount(RoomKey(7)) == 2 }, time.Second, 10*time.Millisecond)

	// Ignored frames produce nothing; the next real message proves it.
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"message":"  "}`)))
	require.NoError(t, alice.WriteJSON(map[string]string{"message": "hello bob"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readJSON(t, conn)
		assert.Equal(t, "message", frame["type"])
		assert.Equal(t, "hello bob", frame["message"])
		assert.Equal(t, "alice", frame["username"])
		assert.Equal(t, float64(1), frame["id"])
	}

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return hub.MemberCount(RoomKey(7)) == 1 }, 2*time.Second, 10*time.Millisecond)

	alice.Close()
	assert.Eventually(t, func() bool { return hub.RoomCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RefusedHandshake(t *testing.T) {
	deny := policyFunc(func(domain.Identity, uint) (bool, error) { return false, nil })
	h, hub := newTestHandler(deny, &memoryStore{})
	srv := newChatServer(t, h)

	conn, resp, err := dial(t, srv, "/7?user=mallory")

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.RoomCount())
}

func TestClient_RemovedMemberIsDisconnected(t *testing.T) {
	h, hub := newTestHandler(allowAll(), &memoryStore{})
	srv := newChatServer(t, h)

	conn, _, err := dial(t, srv, "/7?user=slow")
	require.NoError(t, err)
	defer conn.Close()
	readJSON(t, conn)

	hub.mu.Lock()
	var member *Member
	for _, m := range hub.rooms[RoomKey(7)] {
		member = m
	}
	hub.mu.Unlock()
	require.NotNil(t, member)

	// Eviction and leaving both close the member's queue.
	require.NoError(t, hub.Leave(context.Background(), RoomKey(7), member))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
}

func TestClient_ShutdownSendsGoingAway(t *testing.T) {
	h, hub := newTestHandler(allowAll(), &memoryStore{})
	srv := newChatServer(t, h)

	conn, _, err := dial(t, srv, "/7?user=alice")
	require.NoError(t, err)
	defer conn.Close()
	readJSON(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- h.Shutdown(ctx) }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	require.NoError(t, <-shutdownDone)
	assert.Equal(t, 0, hub.RoomCount())
}
