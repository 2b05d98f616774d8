package bus

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/inductor-io/inductor/internal/metrics"
)

// Sentinel errors for subscription lifecycle.
var (
	// ErrBusClosed is returned when subscribing to a closed bus.
	ErrBusClosed = errors.New("event bus is closed")

	// ErrSubscriptionClosed is returned by Next once a subscription is
	// drained and closed.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrSubscriptionSlow marks a consumer disconnected under the
	// drop_subscription policy.
	ErrSubscriptionSlow = errors.New("subscription dropped: consumer too slow")

	// ErrNoTopics is returned when a subscription declares no topics.
	ErrNoTopics = errors.New("subscription must declare at least one topic")

	// ErrUnknownTopic is returned for a topic outside the enumerated set.
	ErrUnknownTopic = errors.New("unknown topic")
)

const (
	// DefaultQueueSize bounds each subscription queue.
	DefaultQueueSize = 1024

	// DefaultGrace is how long a full drop_subscription queue may stay
	// full before the consumer is disconnected.
	DefaultGrace = 5 * time.Second
)

type (
	// Event is the persisted envelope delivered to subscribers. Delivered
	// copies are read-only.
	Event struct {
		Seq       uint64    `json:"seq"`
		Kind      Topic     `json:"kind"`
		EmittedAt time.Time `json:"emitted_at"`
		Payload   any       `json:"payload"`
	}

	// FilterFunc optionally narrows a subscription beyond its topic set.
	FilterFunc func(Event) bool

	// Bus is the in-process publish/subscribe hub. One mutex guards the
	// subscription table; each subscription queue has its own lock; seq
	// assignment is a lock-free atomic counter.
	Bus struct {
		logger    *slog.Logger
		seq       atomic.Uint64
		mu        sync.RWMutex
		subs      map[string]*Subscription
		policies  map[Topic]Policy
		queueSize int
		grace     time.Duration
		closed    bool
	}

	// Option configures optional Bus behavior.
	Option func(*Bus)

	// SubscriptionStats is a point-in-time view of one subscription.
	SubscriptionStats struct {
		ID        string `json:"id"`
		Queued    int    `json:"queued"`
		Capacity  int    `json:"capacity"`
		Delivered uint64 `json:"delivered"`
		Dropped   uint64 `json:"dropped"`
		Policy    string `json:"policy"`
	}
)

// WithQueueSize overrides the per-subscription queue bound.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithPolicyTable overrides the per-topic backpressure policy table.
func WithPolicyTable(table map[Topic]Policy) Option {
	return func(b *Bus) {
		for topic, policy := range table {
			b.policies[topic] = policy
		}
	}
}

// WithGrace overrides the drop_subscription grace period.
func WithGrace(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.grace = d
		}
	}
}

// New creates an event bus with the default policy table.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger:    logger,
		subs:      make(map[string]*Subscription),
		policies:  DefaultPolicyTable(),
		queueSize: DefaultQueueSize,
		grace:     DefaultGrace,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// CurrentSeq returns the last assigned sequence number. Subscribers use it
// as the heartbeat response.
func (b *Bus) CurrentSeq() uint64 {
	return b.seq.Load()
}

// Publish assigns the next sequence number and fans the event out to every
// matching subscription according to its backpressure policy. Publish never
// returns an error to the producer; delivery failures are absorbed per
// subscription.
func (b *Bus) Publish(topic Topic, payload any) Event {
	event := Event{
		Seq:       b.seq.Add(1),
		Kind:      topic,
		EmittedAt: time.Now().UTC(),
		Payload:   payload,
	}

	metrics.EventsPublished.WithLabelValues(string(topic)).Inc()

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))

	for _, sub := range b.subs {
		if sub.matches(event) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.offer(event)
	}

	return event
}

// Subscribe registers a consumer for the given topics with an optional
// filter. A nil policy uses the per-topic table; a non-nil policy overrides
// it for every topic of this subscription.
func (b *Bus) Subscribe(topics []Topic, filter FilterFunc, override *Policy) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	topicSet := make(map[Topic]bool, len(topics))

	for _, topic := range topics {
		if !topic.Valid() {
			return nil, ErrUnknownTopic
		}

		topicSet[topic] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &Subscription{
		ID:       uuid.NewString(),
		bus:      b,
		topics:   topicSet,
		filter:   filter,
		override: override,
		capacity: b.queueSize,
		grace:    b.grace,
	}
	sub.cond = sync.NewCond(&sub.mu)

	b.subs[sub.ID] = sub
	metrics.SubscriptionsActive.Inc()

	return sub, nil
}

// Unsubscribe removes and closes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]

	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		sub.close(nil)
		metrics.SubscriptionsActive.Dec()
	}
}

// Close flushes the bus: no further subscriptions are accepted and every
// subscription is closed once its queue drains.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return
	}

	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))

	for _, sub := range b.subs {
		subs = append(subs, sub)
	}

	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close(nil)
		metrics.SubscriptionsActive.Dec()
	}
}

// policyFor resolves the effective policy for a topic on a subscription.
func (b *Bus) policyFor(sub *Subscription, topic Topic) Policy {
	if sub.override != nil {
		return *sub.override
	}

	if policy, ok := b.policies[topic]; ok {
		return policy
	}

	return PolicyBlockProducer
}
