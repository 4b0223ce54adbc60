package events

import (
	"net/http"
	"sync"

	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHub is a Publisher subscriber that forwards events to connected
// dashboard websocket clients. A slow client gets dropped rather than
// backpressuring the engine.
type WSHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	logger  *observability.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan Event
}

// NewWSHub creates a websocket hub
func NewWSHub(logger *observability.Logger) *WSHub {
	return &WSHub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

// Notify implements Subscriber
func (h *WSHub) Notify(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Client is not keeping up; disconnect it.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// HandleLive handles GET /api/live websocket upgrades
func (h *WSHub) HandleLive(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "failed to upgrade websocket", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan Event, 32),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Info(ctx, "dashboard client connected")

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *WSHub) writeLoop(client *wsClient) {
	defer client.conn.Close()

	for event := range client.send {
		if err := client.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// readLoop drains inbound frames so pings/close are handled, and removes the
// client on disconnect.
func (h *WSHub) readLoop(client *wsClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[client]; ok {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
