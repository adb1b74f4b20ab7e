// Package ws streams completed analyses to WebSocket subscribers.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPingInterval = 54 * time.Second
	defaultSendBuffer   = 16
)

type client struct {
	conn   *websocket.Conn
	ticker string // empty means every ticker
	send   chan []byte
}

// Hub fans results out to connected clients. Slow clients whose buffer is
// full are disconnected rather than blocking the broadcaster.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *applogger.Logger
	closed   bool

	writeWait    time.Duration
	pingInterval time.Duration
	sendBuffer   int
}

type HubOption func(*Hub)

// WithWriteWait bounds every frame write.
func WithWriteWait(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.writeWait = d
		}
	}
}

// WithPingInterval sets how often clients are pinged. A client that sends no
// pong within 10/9 of the interval is dropped.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithSendBuffer sets how many messages may queue per client.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func NewHub(logger *applogger.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = applogger.Nop()
	}
	h := &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       logger.With(applogger.String("component", "ws_hub")),
		writeWait:    defaultWriteWait,
		pingInterval: defaultPingInterval,
		sendBuffer:   defaultSendBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) pongWait() time.Duration {
	return h.pingInterval * 10 / 9
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/analysis", h.Serve)
}

// Serve upgrades the request and streams results until the client leaves.
// ?ticker= narrows the stream to one symbol.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", applogger.Error(err))
		return nil
	}
	cl := &client{
		conn:   conn,
		ticker: util.NormalizeTicker(c.QueryParam("ticker")),
		send:   make(chan []byte, h.sendBuffer),
	}
	if !h.add(cl) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return nil
	}

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// Broadcast sends r to every subscriber interested in its ticker.
func (h *Hub) Broadcast(r *models.AnalysisResult) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		h.logger.Error("ws marshal result", applogger.String("ticker", r.Ticker), applogger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for cl := range h.clients {
		if cl.ticker != "" && cl.ticker != r.Ticker {
			continue
		}
		select {
		case cl.send <- payload:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.logger.Warn("ws client too slow, disconnecting", applogger.String("ticker", cl.ticker))
		h.remove(cl)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		h.remove(cl)
	}
}

func (h *Hub) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	return true
}

// remove is idempotent; closing send ends the write loop, which closes the conn.
func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	delete(h.clients, cl)
	h.mu.Unlock()
	if ok {
		close(cl.send)
	}
}

// readLoop only consumes control frames; client messages are ignored.
func (h *Hub) readLoop(cl *client) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read error", applogger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(cl)
				return
			}
		}
	}
}
