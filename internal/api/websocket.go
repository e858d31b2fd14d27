package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-zwave/internal/gateway"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/metrics"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	// transportWS labels WebSocket sessions in metrics.
	transportWS = "ws"

	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// updateMessage is pushed to clients whenever gateway state changes.
var updateMessage = []byte(`{"command":"UPDATE"}`)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// Hub tracks WebSocket sessions and broadcasts UPDATE to them.
type Hub struct {
	gateway Gateway
	logger  *logging.Logger
	metrics *metrics.Metrics

	maxMessageSize int64
	pingInterval   time.Duration
	pongTimeout    time.Duration

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// WSClient is one WebSocket connection and its protocol session.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *gateway.Session

	// authenticated mirrors session.Authenticated for the broadcaster,
	// which runs outside the read goroutine.
	authenticated atomic.Bool
}

// NewHub creates a hub whose sessions dispatch into gw.
func NewHub(cfg config.WebSocketConfig, gw Gateway, logger *logging.Logger) *Hub {
	h := &Hub{
		gateway:        gw,
		logger:         logger,
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongTimeout:    time.Duration(cfg.PongTimeout) * time.Second,
		clients:        make(map[*WSClient]struct{}),
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}
	return h
}

// SetMetrics sets the session gauge sink. nil disables it.
func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub. It reports false once the hub is
// closed.
func (h *Hub) Register(client *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SessionOpened(transportWS)
	h.logger.Debug("websocket client connected", "session", client.session.ID, "clients", count)
	return true
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.metrics.SessionClosed(transportWS)
	}
	h.logger.Debug("websocket client disconnected", "session", client.session.ID, "clients", count)
}

// BroadcastUpdate queues the UPDATE notification for every session allowed
// to receive it. It never blocks: a client with a full buffer misses the
// notification.
func (h *Hub) BroadcastUpdate() {
	authRequired := h.gateway.AuthRequired()

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		if authRequired && !client.authenticated.Load() {
			continue
		}
		if client.trySend(updateMessage) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("update broadcast", "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// AuthenticatedCount returns the number of clients that passed AUTH.
func (h *Hub) AuthenticatedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.authenticated.Load() {
			n++
		}
	}
	return n
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
		h.metrics.SessionClosed(transportWS)
	}
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		session: &gateway.Session{
			ID:        uuid.NewString(),
			WebSocket: true,
		},
	}
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	// Request contexts end when the handler returns; commands run under
	// the server context instead.
	ctx := context.WithoutCancel(r.Context())
	go client.writePump()
	go client.readPump(ctx)
}

// readPump reads one command per text frame and answers it in order.
func (c *WSClient) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := c.hub.pingInterval + c.hub.pongTimeout
	c.conn.SetReadLimit(c.hub.maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "session", c.session.ID, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "session", c.session.ID, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))

		if msgType != websocket.TextMessage {
			continue
		}
		resp := c.hub.gateway.Dispatch(ctx, string(message), c.session)
		c.authenticated.Store(c.session.Authenticated)
		if !c.reply(resp) {
			return
		}
	}
}

// reply queues the answer to a command. A client whose buffer is full has
// stopped reading; it is disconnected rather than left one reply short.
func (c *WSClient) reply(resp *gateway.Response) bool {
	if c.trySend(resp.JSON()) {
		return true
	}
	c.hub.logger.Warn("websocket send buffer full, closing connection",
		"session", c.session.ID, "command", resp.Command)
	return false
}

// writePump writes queued messages and keeps the connection alive.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data without blocking. It absorbs the send-on-closed
// panic of a client disconnecting mid-broadcast.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
