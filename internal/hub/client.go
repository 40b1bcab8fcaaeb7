package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/domain"
)

// outboundBufferSize is the bounded per-client send buffer, per spec.
const outboundBufferSize = 1024

// queuedFrame is one pending outbound frame awaiting delivery.
type queuedFrame struct {
	kind domain.TopicKind
	data []byte
}

// Client is one connected WebSocket session.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	mu     sync.Mutex
	topics map[domain.Topic]bool
	buf    []queuedFrame
	wake   chan struct{}
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		id:     id,
		topics: make(map[domain.Topic]bool),
		wake:   make(chan struct{}, 1),
	}
}

// ID returns the client's session id.
func (c *Client) ID() string { return c.id }

// Subscribe adds topic to the client's subscription set.
func (c *Client) Subscribe(topic domain.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

// Unsubscribe removes topic from the client's subscription set.
func (c *Client) Unsubscribe(topic domain.Topic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// subscribed reports whether the client should receive a message for
// topic: an exact (kind, selector) match, or a wildcard subscription to
// the kind with an empty selector.
func (c *Client) subscribed(topic domain.Topic) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics[topic] {
		return true
	}
	return c.topics[domain.Topic{Kind: topic.Kind}]
}

// enqueue appends data to the client's outbound buffer, applying the
// drop-oldest-quote-first overflow policy. Returns true when the client
// must be disconnected for SLOW_CONSUMER (a non-quote message could not
// be queued because the buffer holds no evictable quote frame).
func (c *Client) enqueue(kind domain.TopicKind, data []byte) (disconnect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	if len(c.buf) < outboundBufferSize {
		c.buf = append(c.buf, queuedFrame{kind: kind, data: data})
		c.signalLocked()
		return false
	}

	oldestQuoteIdx := -1
	for i, f := range c.buf {
		if f.kind == domain.TopicQuote {
			oldestQuoteIdx = i
			break
		}
	}
	if oldestQuoteIdx < 0 {
		// Buffer is full of non-quote frames. A new quote frame is simply
		// dropped; a new non-quote frame forces disconnect.
		if kind == domain.TopicQuote {
			return false
		}
		return true
	}
	c.buf = append(c.buf[:oldestQuoteIdx], c.buf[oldestQuoteIdx+1:]...)
	c.buf = append(c.buf, queuedFrame{kind: kind, data: data})
	c.signalLocked()
	return false
}

func (c *Client) signalLocked() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// drain pops every currently queued frame. Caller owns the returned slice.
func (c *Client) drain() []queuedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return nil
	}
	out := c.buf
	c.buf = nil
	return out
}

func (c *Client) closeOnce() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.conn.Close()
}

// writePump delivers queued frames and periodic pings until the
// connection breaks. heartbeat controls both the ping cadence and the
// write deadline.
func (c *Client) writePump(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.hub.unregister <- c
	}()

	for {
		select {
		case <-c.wake:
			for _, frame := range c.drain() {
				c.conn.SetWriteDeadline(time.Now().Add(heartbeat))
				if err := c.conn.WriteMessage(websocket.TextMessage, frame.data); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(heartbeat))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientAction is a subscribe/unsubscribe/ping request from the client.
type clientAction struct {
	Action string     `json:"action"`
	Topic  topicWire  `json:"topic,omitempty"`
	TS     *time.Time `json:"ts,omitempty"`
}

type topicWire struct {
	Kind     domain.TopicKind `json:"kind"`
	Selector string           `json:"selector,omitempty"`
}

// readPump reads subscribe/unsubscribe/ping frames until the connection
// breaks or the heartbeat deadline (heartbeat*3) elapses without a pong
// or a ping action.
func (c *Client) readPump(heartbeat time.Duration) {
	defer func() { c.hub.unregister <- c }()

	c.conn.SetReadLimit(64 * 1024)
	deadline := heartbeat * 3
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var action clientAction
		if err := json.Unmarshal(raw, &action); err != nil {
			continue
		}
		switch action.Action {
		case "subscribe":
			c.Subscribe(domain.Topic{Kind: action.Topic.Kind, Selector: action.Topic.Selector})
		case "unsubscribe":
			c.Unsubscribe(domain.Topic{Kind: action.Topic.Kind, Selector: action.Topic.Selector})
		case "ping":
			// keepalive only; refreshes the read deadline like a pong
			c.conn.SetReadDeadline(time.Now().Add(deadline))
		}
	}
}
