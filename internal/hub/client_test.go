package hub

import (
	"testing"

	"tradecore/internal/domain"
)

func newTestClient() *Client {
	return &Client{
		topics: make(map[domain.Topic]bool),
		wake:   make(chan struct{}, 1),
	}
}

func TestSubscribeExactMatch(t *testing.T) {
	c := newTestClient()
	c.Subscribe(domain.Topic{Kind: domain.TopicQuote, Selector: "ES"})

	if !c.subscribed(domain.Topic{Kind: domain.TopicQuote, Selector: "ES"}) {
		t.Fatal("expected exact match to be subscribed")
	}
	if c.subscribed(domain.Topic{Kind: domain.TopicQuote, Selector: "NQ"}) {
		t.Fatal("expected different selector to not match")
	}
}

func TestSubscribeWildcard(t *testing.T) {
	c := newTestClient()
	c.Subscribe(domain.Topic{Kind: domain.TopicOrder})

	if !c.subscribed(domain.Topic{Kind: domain.TopicOrder, Selector: "acct1"}) {
		t.Fatal("expected wildcard kind subscription to match any selector")
	}
}

func TestUnsubscribeRemoves(t *testing.T) {
	c := newTestClient()
	topic := domain.Topic{Kind: domain.TopicFill, Selector: "acct1"}
	c.Subscribe(topic)
	c.Unsubscribe(topic)

	if c.subscribed(topic) {
		t.Fatal("expected unsubscribe to remove the topic")
	}
}

func fillBuffer(c *Client, n int, kind domain.TopicKind) {
	for i := 0; i < n; i++ {
		c.enqueue(kind, []byte("x"))
	}
}

func TestEnqueueWithinCapacity(t *testing.T) {
	c := newTestClient()
	disconnect := c.enqueue(domain.TopicQuote, []byte("q1"))
	if disconnect {
		t.Fatal("unexpected disconnect")
	}
	if len(c.buf) != 1 {
		t.Fatalf("expected 1 buffered frame, got %d", len(c.buf))
	}
}

func TestOverflowDropsOldestQuoteFirst(t *testing.T) {
	c := newTestClient()
	fillBuffer(c, outboundBufferSize, domain.TopicQuote)

	disconnect := c.enqueue(domain.TopicOrder, []byte("order-1"))
	if disconnect {
		t.Fatal("expected non-quote to evict a quote frame rather than disconnect")
	}
	if len(c.buf) != outboundBufferSize {
		t.Fatalf("expected buffer to stay at capacity, got %d", len(c.buf))
	}
	if c.buf[len(c.buf)-1].kind != domain.TopicOrder {
		t.Fatal("expected the new order frame to be appended")
	}
}

func TestOverflowAllNonQuoteDisconnects(t *testing.T) {
	c := newTestClient()
	fillBuffer(c, outboundBufferSize, domain.TopicOrder)

	disconnect := c.enqueue(domain.TopicFill, []byte("fill-1"))
	if !disconnect {
		t.Fatal("expected SLOW_CONSUMER disconnect when no quote frame is evictable")
	}
}

func TestOverflowQuoteDroppedSilentlyWhenNoRoom(t *testing.T) {
	c := newTestClient()
	fillBuffer(c, outboundBufferSize, domain.TopicOrder)

	disconnect := c.enqueue(domain.TopicQuote, []byte("q-new"))
	if disconnect {
		t.Fatal("expected quote overflow to drop silently, not disconnect")
	}
	if len(c.buf) != outboundBufferSize {
		t.Fatalf("expected buffer unchanged, got %d", len(c.buf))
	}
}

func TestDrainEmptiesBuffer(t *testing.T) {
	c := newTestClient()
	fillBuffer(c, 5, domain.TopicQuote)

	frames := c.drain()
	if len(frames) != 5 {
		t.Fatalf("expected 5 drained frames, got %d", len(frames))
	}
	if len(c.buf) != 0 {
		t.Fatal("expected buffer to be empty after drain")
	}
}
