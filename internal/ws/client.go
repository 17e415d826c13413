package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
)

// Client mirrors a remote node store into a local one over the push
// protocol. It subscribes to every type, applies node:created /
// node:updated / node:deleted messages to the local store, and
// reconnects with a fixed delay when the connection drops.
type Client struct {
	url   string
	local *store.Store

	reconnectDelay time.Duration
	maxAttempts    uint64
	pingInterval   time.Duration

	mu     sync.Mutex
	sock   *websocket.Conn
	closed bool
	done   chan struct{}
}

// ClientOptions tunes reconnect and keepalive behavior. Zero values
// take the defaults: 1s reconnect delay, 5 attempts, 30s ping.
type ClientOptions struct {
	ReconnectDelay time.Duration
	MaxAttempts    uint64
	PingInterval   time.Duration
}

// NewClient creates a client replicating into local. baseURL is the
// HTTP base of the remote server (http:// and https:// are rewritten
// to the ws scheme); the push endpoint is assumed at /ws.
func NewClient(baseURL string, local *store.Store, opts ClientOptions) *Client {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	if !strings.HasSuffix(u, "/ws") {
		u += "/ws"
	}

	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &Client{
		url:            u,
		local:          local,
		reconnectDelay: opts.ReconnectDelay,
		maxAttempts:    opts.MaxAttempts,
		pingInterval:   opts.PingInterval,
		done:           make(chan struct{}),
	}
}

// Run connects and replicates until Close is called or the reconnect
// budget is exhausted. Blocks; callers usually run it in a goroutine.
func (c *Client) Run() error {
	for {
		if c.isClosed() {
			return nil
		}

		// Fixed-delay reconnect with a bounded attempt count.
		bo := backoff.WithMaxRetries(
			backoff.NewConstantBackOff(c.reconnectDelay), c.maxAttempts)
		err := backoff.Retry(func() error {
			if c.isClosed() {
				return nil
			}
			return c.connect()
		}, bo)
		if err != nil {
			return fmt.Errorf("ws client: giving up after %d attempts: %w", c.maxAttempts, err)
		}
		if c.isClosed() {
			return nil
		}

		c.readUntilDisconnect()
	}
}

// Close tears the connection down and suppresses further reconnects.
// Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sock := c.sock
	close(c.done)
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// connect dials the remote endpoint and subscribes to every type.
func (c *Client) connect() error {
	u, err := url.Parse(c.url)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("parse ws url: %w", err))
	}
	sock, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sock.Close()
		return nil
	}
	c.sock = sock
	c.mu.Unlock()

	return sock.WriteJSON(map[string]any{"type": "subscribe", "data": "*"})
}

// readUntilDisconnect applies replication messages until the socket
// dies, keeping the connection warm with periodic pings.
func (c *Client) readUntilDisconnect() {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return
	}

	pinger := time.NewTicker(c.pingInterval)
	defer pinger.Stop()
	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-pinger.C:
				c.mu.Lock()
				s := c.sock
				c.mu.Unlock()
				if s == nil {
					return
				}
				if err := s.WriteJSON(map[string]string{"type": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			return
		}
		c.apply(data)
	}
}

// apply handles one replication message. Unknown types are ignored.
func (c *Client) apply(data []byte) {
	var msg struct {
		Type     string          `json:"type"`
		NodeID   string          `json:"nodeId"`
		NodeType string          `json:"nodeType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "node:created", "node:updated":
		var n types.Node
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			slog.Warn("ws client: bad node payload", "nodeId", msg.NodeID, "error", err)
			return
		}
		// The remote internal descriptor is authoritative; fall back to
		// the envelope when the payload omitted it.
		if n.Internal.ID == "" {
			n.Internal.ID = msg.NodeID
		}
		if n.Internal.Type == "" {
			n.Internal.Type = msg.NodeType
		}
		if err := c.local.Set(&n); err != nil {
			slog.Warn("ws client: failed to mirror node", "nodeId", msg.NodeID, "error", err)
		}
	case "node:deleted":
		c.local.Delete(msg.NodeID)
	}
}
