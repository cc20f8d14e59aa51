package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-w215/internal/event"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/logging"
)

// Stream message types.
const (
	StreamTypeState = "state"
	StreamTypeWatch = "watch"
	StreamTypePing  = "ping"
	StreamTypePong  = "pong"
	StreamTypeAck   = "ack"
	StreamTypeError = "error"

	// streamQueueSize is the per-client outbound queue length.
	streamQueueSize = 256
)

// StreamMessage is a frame exchanged on the state stream.
type StreamMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// Set on state frames.
	Kind   event.Kind         `json:"kind,omitempty"`
	Change *event.StateChange `json:"change,omitempty"`

	// Watch frames carry the prefixes to add or drop.
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`

	Error string `json:"error,omitempty"`
}

// Hub relays emitted state changes to WebSocket clients.
//
// A client watches feature external ID prefixes: "w215:192.168.1.20" matches
// every feature of that plug and "w215:192.168.1.20:power" only its power.
// A client without prefixes receives everything.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn  *websocket.Conn
	queue chan []byte

	mu       sync.RWMutex
	prefixes map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
//
// Parameters:
//   - cfg: WebSocket limits (message size, ping/pong timing)
//   - logger: Logger for connection lifecycle events
//
// Returns:
//   - *Hub: Hub with no clients; call Run to tie it to a context
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.queue)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handle implements event.Handler.
func (h *Hub) Handle(_ context.Context, kind event.Kind, change event.StateChange) error {
	data, err := json.Marshal(StreamMessage{Type: StreamTypeState, Kind: kind, Change: &change})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.watches(change.FeatureExternalID) {
			c.enqueue(data)
		}
	}
	return nil
}

func (h *Hub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// remove drops c and closes its queue. Only the first call for a client
// closes the queue.
func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.queue)
	}
}

// handleWebSocket upgrades the request and attaches the connection to the
// hub. Initial prefixes may be passed as ?watch=a,b.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		conn:     conn,
		queue:    make(chan []byte, streamQueueSize),
		prefixes: make(map[string]struct{}),
	}
	c.update(strings.Split(r.URL.Query().Get("watch"), ","), nil)

	if !s.hub.add(c) {
		conn.Close()
		return
	}
	s.logger.Debug("websocket client connected", "clients", s.hub.ClientCount())

	go s.hub.writeLoop(c)
	go s.hub.readLoop(c)
}

func (h *Hub) readLoop(c *streamClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
	}()

	deadline := time.Duration(h.cfg.PingInterval+h.cfg.PongTimeout) * time.Second
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	extend("") //nolint:errcheck // Best-effort deadline
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // Best-effort deadline

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(StreamMessage{Type: StreamTypeError, Error: "invalid JSON message"})
			continue
		}

		switch msg.Type {
		case StreamTypeWatch:
			c.update(msg.Add, msg.Remove)
			c.reply(StreamMessage{Type: StreamTypeAck, ID: msg.ID, Add: c.watched()})
		case StreamTypePing:
			c.reply(StreamMessage{Type: StreamTypePong, ID: msg.ID})
		default:
			c.reply(StreamMessage{Type: StreamTypeError, ID: msg.ID, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (h *Hub) writeLoop(c *streamClient) {
	ping := time.NewTicker(time.Duration(h.cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(h.cfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Write error is checked below
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Write error is checked below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue drops the frame when the client is too slow to keep up.
// Callers hold the hub read lock, so the queue cannot be closed underneath.
func (c *streamClient) enqueue(data []byte) {
	select {
	case c.queue <- data:
	default:
	}
}

// reply queues a direct answer to the client. It runs on the read loop,
// which can race with hub shutdown closing the queue.
func (c *streamClient) reply(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	defer func() {
		recover() //nolint:errcheck // Queue closed during shutdown
	}()
	c.enqueue(data)
}

func (c *streamClient) update(add, remove []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range add {
		if p = strings.TrimSpace(p); p != "" {
			c.prefixes[p] = struct{}{}
		}
	}
	for _, p := range remove {
		delete(c.prefixes, strings.TrimSpace(p))
	}
}

func (c *streamClient) watched() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.prefixes))
	for p := range c.prefixes {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (c *streamClient) watches(featureExternalID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.prefixes) == 0 {
		return true
	}
	for p := range c.prefixes {
		if featureExternalID == p || strings.HasPrefix(featureExternalID, p+":") {
			return true
		}
	}
	return false
}
