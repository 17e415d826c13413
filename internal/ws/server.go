// Package ws implements the push fabric: a WebSocket server that
// broadcasts node change events to subscribed clients, and a
// reconnecting client that mirrors a remote store into a local one
// over the same protocol.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/udl-dev/udl/internal/eventbus"
	"github.com/udl-dev/udl/internal/types"
)

// DefaultHeartbeat is the interval between protocol pings. A client
// that misses two consecutive heartbeats is terminated.
const DefaultHeartbeat = 30 * time.Second

const (
	writeTimeout = 10 * time.Second
	sendBuffer   = 256
)

// Message is the wire envelope for server→client frames.
type Message struct {
	Type       string      `json:"type"`
	NodeID     string      `json:"nodeId,omitempty"`
	NodeType   string      `json:"nodeType,omitempty"`
	Data       any         `json:"data,omitempty"`
	PluginName string      `json:"pluginName,omitempty"`
	Body       any         `json:"body,omitempty"`
	Headers    http.Header `json:"headers,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
}

// clientMessage is the wire shape of client→server frames.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Server broadcasts node change events to connected WebSocket clients,
// filtered per-connection by subscribed node types.
type Server struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*conn]bool

	bus   *eventbus.Bus
	subID string

	heartbeat time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

// conn is one WebSocket client connection.
type conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte

	mu sync.Mutex
	// subscription: nil means "*" (everything); otherwise the set of
	// node types this client wants.
	subscription map[string]bool
	isAlive      bool
	closed       bool
}

// NewServer creates a WebSocket server wired to the change bus. The
// returned server is an http.Handler; mount it wherever the transport
// lives (default path /ws). A zero heartbeat uses DefaultHeartbeat.
func NewServer(bus *eventbus.Bus, heartbeat time.Duration) *Server {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:     make(map[*conn]bool),
		bus:       bus,
		heartbeat: heartbeat,
		stop:      make(chan struct{}),
	}
	if bus != nil {
		s.subID = bus.Subscribe(s.broadcast)
	}
	go s.heartbeatLoop()
	return s
}

// ServeHTTP upgrades the request and runs the connection until it
// closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &conn{
		id:      uuid.New().String(),
		sock:    sock,
		send:    make(chan []byte, sendBuffer),
		isAlive: true,
	}
	sock.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.isAlive = true
		c.mu.Unlock()
		return nil
	})

	s.mu.Lock()
	s.conns[c] = true
	s.mu.Unlock()

	s.sendJSON(c, Message{Type: "connected", Data: map[string]string{
		"message": "connected to node change feed",
	}})

	go c.writePump()
	s.readLoop(c)
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// BroadcastWebhook fans a webhook:received notification out to every
// matching connection. Implements the webhook.Broadcaster interface.
func (s *Server) BroadcastWebhook(plugin string, body map[string]any, headers http.Header) {
	data, err := json.Marshal(Message{
		Type:       "webhook:received",
		PluginName: plugin,
		Body:       body,
		Headers:    headers,
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.conns {
		c.trySend(data)
	}
}

// Close unsubscribes from the bus, stops the heartbeat, and closes
// every connection. Idempotent.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.bus != nil {
			s.bus.Unsubscribe(s.subID)
		}
		close(s.stop)

		s.mu.Lock()
		conns := make([]*conn, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.conns = make(map[*conn]bool)
		s.mu.Unlock()

		for _, c := range conns {
			c.close()
		}
	})
}

// broadcast is the bus subscription: one change event fans out to every
// open connection whose subscription matches the node type. Sends are
// non-blocking so a slow consumer never backs up the bus.
func (s *Server) broadcast(evt types.NodeChangeEvent) {
	msg := Message{
		Type:      "node:" + string(evt.Type),
		NodeID:    evt.NodeID,
		NodeType:  evt.NodeType,
		Timestamp: evt.Timestamp.Format(time.RFC3339Nano),
	}
	if evt.Node != nil {
		msg.Data = evt.Node
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("failed to marshal change event", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.conns {
		if !c.wants(evt.NodeType) {
			continue
		}
		c.trySend(data)
	}
}

// readLoop processes inbound frames until the connection dies. Unknown
// message types and malformed JSON are silently ignored.
func (s *Server) readLoop(c *conn) {
	defer s.drop(c)

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			s.sendJSON(c, Message{Type: "pong"})
		case "subscribe":
			types := c.updateSubscription(msg.Data)
			s.sendJSON(c, Message{Type: "subscribed", Data: map[string]any{"types": types}})
		}
	}
}

// heartbeatLoop terminates connections that missed a pong and pings
// the rest.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.RLock()
			conns := make([]*conn, 0, len(s.conns))
			for c := range s.conns {
				conns = append(conns, c)
			}
			s.mu.RUnlock()

			for _, c := range conns {
				c.mu.Lock()
				alive := c.isAlive
				c.isAlive = false
				c.mu.Unlock()
				if !alive {
					s.drop(c)
					continue
				}
				// WriteControl is safe concurrently with the write pump.
				_ = c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			}
		}
	}
}

func (s *Server) drop(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) sendJSON(c *conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// wants reports whether this connection's subscription covers nodeType.
func (c *conn) wants(nodeType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.subscription == nil {
		return true
	}
	return c.subscription[nodeType]
}

// updateSubscription parses a subscribe payload: "*" or a list of
// type names. Returns the value echoed in the subscribed reply.
func (c *conn) updateSubscription(raw json.RawMessage) any {
	var star string
	if err := json.Unmarshal(raw, &star); err == nil && star == "*" {
		c.mu.Lock()
		c.subscription = nil
		c.mu.Unlock()
		return "*"
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		set := make(map[string]bool, len(list))
		for _, t := range list {
			set[t] = true
		}
		c.mu.Lock()
		c.subscription = set
		c.mu.Unlock()
		return list
	}
	// Unusable payload: keep the current subscription.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscription == nil {
		return "*"
	}
	current := make([]string, 0, len(c.subscription))
	for t := range c.subscription {
		current = append(current, t)
	}
	return current
}

// trySend queues data without blocking. A full buffer means the client
// is too slow; the connection is closed rather than stalling the bus.
func (c *conn) trySend(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// The send stays under the lock so close() cannot close the channel
	// between the closed check and the send.
	var full bool
	select {
	case c.send <- data:
	default:
		full = true
	}
	c.mu.Unlock()

	if full {
		slog.Warn("websocket client too slow, dropping connection", "conn", c.id)
		c.close()
	}
}

func (c *conn) writePump() {
	for data := range c.send {
		_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
			c.close()
			return
		}
	}
	_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.send)
	_ = c.sock.Close()
}
