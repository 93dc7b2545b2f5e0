package websocket

import (
	"net"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades HTTP requests into event stream clients
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	hello    func() any
}

// NewHandler creates a handler. hello, when set, builds the snapshot sent to each new client.
func NewHandler(hub *Hub, hello func() any, logger *zap.Logger) *Handler {
	return &Handler{
		hub:    hub,
		hello:  hello,
		logger: logger.With(zap.String("component", "event_stream")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkLoopbackOrigin,
		},
	}
}

// Serve handles GET /api/v1/offline/events
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, h.logger)
	if h.hello != nil {
		client.send <- NewMessage(MessageTypeHello, "snapshot", h.hello())
	}
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// checkLoopbackOrigin accepts requests without an Origin and browser pages served from this machine
func checkLoopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
