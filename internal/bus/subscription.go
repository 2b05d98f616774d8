package bus

import (
	"context"
	"sync"
	"time"

	"github.com/inductor-io/inductor/internal/metrics"
)

// Subscription is one consumer's bounded, ordered event queue. Events are
// delivered in seq order; emergency alerts jump the queue and are never
// dropped. lastSeq tracks the highest delivered non-emergency seq for
// de-duplication, so a redelivered event is skipped rather than observed
// twice.
type Subscription struct {
	ID string

	bus      *Bus
	topics   map[Topic]bool
	filter   FilterFunc
	override *Policy

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	capacity  int
	grace     time.Duration
	lastSeq   uint64
	delivered uint64
	dropped   uint64
	closed    bool
	closeErr  error
}

// matches reports whether the subscription wants the event.
func (s *Subscription) matches(event Event) bool {
	if !s.topics[event.Kind] {
		return false
	}

	if s.filter != nil && !s.filter(event) {
		return false
	}

	return true
}

// offer enqueues the event under the subscription's backpressure policy.
func (s *Subscription) offer(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	// Emergency alerts insert at the head and may exceed capacity.
	if event.Kind == TopicEmergencyAlert {
		s.queue = append([]Event{event}, s.queue...)
		s.cond.Broadcast()

		return
	}

	policy := s.bus.policyFor(s, event.Kind)

	switch policy {
	case PolicyDropOldest:
		if len(s.queue) >= s.capacity {
			s.queue = s.queue[1:]
			s.dropped++
			metrics.EventsDropped.WithLabelValues(string(event.Kind), string(PolicyDropOldest)).Inc()
		}

	case PolicyBlockProducer:
		for len(s.queue) >= s.capacity && !s.closed {
			s.cond.Wait()
		}

		if s.closed {
			return
		}

	case PolicyDropSubscription:
		if len(s.queue) >= s.capacity {
			deadline := time.Now().Add(s.grace)

			for len(s.queue) >= s.capacity && !s.closed && time.Now().Before(deadline) {
				// Cond has no timed wait; poll at a coarse interval so the
				// grace period is honored without spinning.
				s.mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				s.mu.Lock()
			}

			if len(s.queue) >= s.capacity && !s.closed {
				s.dropped++
				metrics.EventsDropped.WithLabelValues(string(event.Kind), string(PolicyDropSubscription)).Inc()
				s.closeLocked(ErrSubscriptionSlow)

				return
			}

			if s.closed {
				return
			}
		}
	}

	s.queue = append(s.queue, event)
	s.cond.Broadcast()
}

// Next blocks until an event is available, the context ends, or the
// subscription is closed and drained. Duplicate seqs are skipped.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	// Wake the waiter when the context ends. The goroutine exits after one
	// broadcast; Next re-registers on each call.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return Event{}, ctx.Err()
		}

		if len(s.queue) == 0 {
			if s.closed {
				if s.closeErr != nil {
					return Event{}, s.closeErr
				}

				return Event{}, ErrSubscriptionClosed
			}

			s.cond.Wait()

			continue
		}

		event := s.queue[0]
		s.queue = s.queue[1:]
		s.cond.Broadcast()

		if event.Kind != TopicEmergencyAlert {
			if event.Seq <= s.lastSeq {
				// Already delivered; at-least-once de-dup by seq.
				continue
			}

			s.lastSeq = event.Seq
		}

		s.delivered++

		return event, nil
	}
}

// Stats returns a point-in-time view of the subscription.
func (s *Subscription) Stats() SubscriptionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy := "per-topic"
	if s.override != nil {
		policy = string(*s.override)
	}

	return SubscriptionStats{
		ID:        s.ID,
		Queued:    len(s.queue),
		Capacity:  s.capacity,
		Delivered: s.delivered,
		Dropped:   s.dropped,
		Policy:    policy,
	}
}

// Topics returns the topic set the subscription declared.
func (s *Subscription) Topics() []Topic {
	topics := make([]Topic, 0, len(s.topics))

	for topic := range s.topics {
		topics = append(topics, topic)
	}

	return topics
}

func (s *Subscription) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked(err)
}

func (s *Subscription) closeLocked(err error) {
	if s.closed {
		return
	}

	s.closed = true
	s.closeErr = err
	s.cond.Broadcast()
}
