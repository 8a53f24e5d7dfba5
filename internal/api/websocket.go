package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/logging"
)

// ChannelAccessoryChanged carries every characteristic change. A client
// interested in one accessory subscribes to "accessory:<name>" instead.
const ChannelAccessoryChanged = "accessory.changed"

const accessoryChannelPrefix = "accessory:"

// Frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePing        = "ping"
	framePong        = "pong"
	frameEvent       = "event"
	frameResponse    = "response"
	frameError       = "error"
)

const (
	sendQueueSize = 256

	// Defaults for an unset WebSocketConfig, in seconds and bytes.
	defaultPingInterval   = 30
	defaultPongTimeout    = 10
	defaultMaxMessageSize = 4096
)

// ChangeEvent is the payload of an accessory.changed event.
type ChangeEvent struct {
	Accessory      string `json:"accessory"`
	Characteristic string `json:"characteristic"`
	Value          any    `json:"value"`
}

// Frame is a server-to-client message.
type Frame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// request is a client-to-server message. Only subscribe and unsubscribe
// carry a payload.
type request struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload struct {
		Channels []string `json:"channels"`
	} `json:"payload"`
}

func newFrame(typ, id string, payload any) Frame {
	return Frame{
		Type:      typ,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// Hub fans accessory changes out to WebSocket clients. It implements the
// accessories' refresh notifier.
//
// Thread Safety:
//   - All methods are safe for concurrent use. A client's send queue is
//     only written or closed while the hub lock is held.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are policed by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub, filling unset keepalive settings with defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Refresh sends a change event to clients subscribed to
// ChannelAccessoryChanged or to the accessory's own channel.
func (h *Hub) Refresh(accessory, characteristic string, value any) {
	frame := newFrame(frameEvent, "", ChangeEvent{
		Accessory:      accessory,
		Characteristic: characteristic,
		Value:          value,
	})
	frame.EventType = ChannelAccessoryChanged

	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encoding change event failed", "accessory", accessory, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(ChannelAccessoryChanged, accessoryChannelPrefix+accessory) {
			c.enqueue(data)
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// dropLocked forgets c and closes its queue once. Callers hold h.mu.
func (h *Hub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// handleWebSocket upgrades an authenticated request. Initial channels may
// be passed as ?subscribe=a,b.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		channels: make(map[string]struct{}),
	}
	c.subscribe(strings.Split(r.URL.Query().Get("subscribe"), ","))

	s.hub.add(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *wsClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // A failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings still keep the socket alive
		// by sending frames.
		extend() //nolint:errcheck // As above
		c.handle(data)
	}
}

func (c *wsClient) writeLoop() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Surfaces on the write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Peer may be gone
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(newFrame(frameError, "", map[string]string{"message": "invalid JSON message"}))
		return
	}

	switch req.Type {
	case frameSubscribe:
		c.subscribe(req.Payload.Channels)
		c.reply(newFrame(frameResponse, req.ID, map[string]any{"subscribed": req.Payload.Channels}))
	case frameUnsubscribe:
		c.unsubscribe(req.Payload.Channels)
		c.reply(newFrame(frameResponse, req.ID, map[string]any{"unsubscribed": req.Payload.Channels}))
	case framePing:
		c.reply(newFrame(framePong, req.ID, nil))
	default:
		c.reply(newFrame(frameError, req.ID, map[string]string{"message": "unknown message type: " + req.Type}))
	}
}

func (c *wsClient) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.channels[ch] = struct{}{}
		}
	}
}

func (c *wsClient) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, strings.TrimSpace(ch))
	}
}

func (c *wsClient) wants(channels ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range channels {
		if _, ok := c.channels[ch]; ok {
			return true
		}
	}
	return false
}

// reply queues a frame for this client only.
func (c *wsClient) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.enqueue(data)
	}
}

// enqueue drops the frame when a slow client's queue is full. Callers hold
// the hub lock so the queue cannot be closed underneath.
func (c *wsClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}
