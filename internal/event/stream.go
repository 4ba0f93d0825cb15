package event

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// Stream timing and buffer limits.
const (
	// streamWriteWait bounds a single websocket write.
	streamWriteWait = 10 * time.Second

	// streamPongWait is how long to wait for a pong before dropping the
	// client. Must be longer than streamPingPeriod.
	streamPongWait = 60 * time.Second

	// streamPingPeriod is the keepalive ping interval.
	streamPingPeriod = (streamPongWait * 9) / 10

	// streamReadLimit caps inbound message size; clients only send
	// control frames.
	streamReadLimit = 512

	// streamClientBuffer is the per-client send queue length.
	streamClientBuffer = 32
)

// Hub broadcasts events to websocket clients. It implements both Sink
// and http.Handler: mount it on the stream route and register it on
// the bus.
type Hub struct {
	logger   observability.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub.
func NewHub(logger observability.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Hub{
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Origin is validated by the middleware guarding the route
			},
		},
		clients: make(map[*streamClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and streams events until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", observability.Error(err))
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan []byte, streamClientBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.streamConnected()
	h.logger.Debug("stream client connected",
		observability.String("remote_addr", r.RemoteAddr),
	)

	go h.writePump(c)
	go h.readPump(c)
}

// Deliver implements Sink. Slow clients lose events instead of
// stalling the dispatch loop.
func (h *Hub) Deliver(_ context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal stream event", observability.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.metrics.streamDrop()
			h.logger.Warn("stream client send buffer full, dropping event",
				observability.String("type", string(event.Type)),
			)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close implements Sink. It disconnects every client and rejects new
// ones. Close is idempotent.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		h.metrics.streamDisconnected()
	}
	return nil
}

func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c)
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *streamClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(streamReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop unregisters the client and closes its connection. Both pumps
// call it on exit; only the first call counts the disconnect.
func (h *Hub) drop(c *streamClient) {
	h.mu.Lock()
	_, registered := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	_ = c.conn.Close()

	if registered {
		h.metrics.streamDisconnected()
	}
}
