package domain

// TopicKind enumerates the broadcast message categories a client may
// subscribe to on the hub.
type TopicKind string

const (
	TopicQuote     TopicKind = "quote"
	TopicAccount   TopicKind = "account"
	TopicPosition  TopicKind = "position"
	TopicOrder     TopicKind = "order"
	TopicFill      TopicKind = "fill"
	TopicAlert     TopicKind = "alert"
	TopicViolation TopicKind = "violation"
	TopicStrategy  TopicKind = "strategy"
)

// Topic is a typed selector a client subscribes to. Selector narrows the
// kind further (e.g. an instrument symbol or account id); empty matches
// everything of that kind.
type Topic struct {
	Kind     TopicKind
	Selector string
}

// Subscription is one client's set of active topics.
type Subscription struct {
	ClientID string
	Topics   map[Topic]bool
}
