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

	"github.com/jrjohn/arcana-pos-go/internal/testutil"
)

func setupStream(t *testing.T, hello func() any) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := testutil.NewTestLogger(t)
	hub := NewHub(logger)
	go hub.Run(t.Context())

	router := gin.New()
	router.GET("/events", NewHandler(hub, hello, logger).Serve)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, url := setupStream(t, nil)

	first := dial(t, url)
	second := dial(t, url)
	testutil.WaitForCondition(t, 2*time.Second, func() bool { return hub.ClientCount() == 2 }, "two clients registered")

	hub.Broadcast(NewMessage(MessageTypeQueue, "enqueued", map[string]int{"size": 1}))

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeQueue, msg.Type)
		assert.Equal(t, "enqueued", msg.Event)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, map[string]any{"size": float64(1)}, msg.Data)
	}
}

func TestHandler_SendsSnapshotFirst(t *testing.T) {
	_, url := setupStream(t, func() any { return map[string]int{"pending": 3} })

	conn := dial(t, url)
	msg := readMessage(t, conn)

	assert.Equal(t, MessageTypeHello, msg.Type)
	assert.Equal(t, "snapshot", msg.Event)
	assert.Equal(t, map[string]any{"pending": float64(3)}, msg.Data)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, url := setupStream(t, nil)

	conn := dial(t, url)
	testutil.WaitForCondition(t, 2*time.Second, func() bool { return hub.ClientCount() == 1 }, "client registered")

	conn.Close()
	testutil.WaitForCondition(t, 2*time.Second, func() bool { return hub.ClientCount() == 0 }, "client unregistered")
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(testutil.NewTestLogger(t))
	go hub.Run(t.Context())

	assert.NotPanics(t, func() {
		hub.Broadcast(NewMessage(MessageTypeSync, "finished", nil))
	})
	assert.Zero(t, hub.ClientCount())
}

func TestCheckLoopbackOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://[::1]:8080", true},
		{"https://evil.example.com", false},
		{"http://192.168.1.20", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkLoopbackOrigin(req))
		})
	}
}
