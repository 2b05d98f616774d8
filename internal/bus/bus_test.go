package bus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()

	b := New(slog.New(slog.DiscardHandler), opts...)
	t.Cleanup(b.Close)

	return b
}

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	b := newTestBus(t)

	first := b.Publish(TopicDecisionGenerated, nil)
	second := b.Publish(TopicTrainsetUpdated, nil)

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, uint64(2), b.CurrentSeq())
}

func TestSubscribeRequiresTopics(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Subscribe(nil, nil, nil)
	require.ErrorIs(t, err, ErrNoTopics)
}

func TestSubscribeRejectsUnknownTopic(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Subscribe([]Topic{"not.a.topic"}, nil, nil)
	require.ErrorIs(t, err, ErrUnknownTopic)
}

func TestSubscriberReceivesEventsInOrder(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe([]Topic{TopicDecisionGenerated}, nil, nil)
	require.NoError(t, err)

	b.Publish(TopicDecisionGenerated, "a")
	b.Publish(TopicDecisionGenerated, "b")
	b.Publish(TopicDecisionGenerated, "c")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []string{"a", "b", "c"} {
		event, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, event.Payload)
	}
}

func TestTopicSetNarrowsDelivery(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe([]Topic{TopicFitnessUpdated}, nil, nil)
	require.NoError(t, err)

	b.Publish(TopicDecisionGenerated, "skip")
	b.Publish(TopicFitnessUpdated, "keep")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep", event.Payload)
	assert.Equal(t, TopicFitnessUpdated, event.Kind)
}

func TestFilterFuncNarrowsDelivery(t *testing.T) {
	b := newTestBus(t)

	onlyEven := func(e Event) bool { return e.Seq%2 == 0 }

	sub, err := b.Subscribe([]Topic{TopicTrainsetUpdated}, onlyEven, nil)
	require.NoError(t, err)

	b.Publish(TopicTrainsetUpdated, "one")
	b.Publish(TopicTrainsetUpdated, "two")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", event.Payload)
}

func TestDropOldestPolicy(t *testing.T) {
	b := newTestBus(t, WithQueueSize(2))

	policy := PolicyDropOldest

	sub, err := b.Subscribe([]Topic{TopicOptimizationProgress}, nil, &policy)
	require.NoError(t, err)

	for _, payload := range []string{"p1", "p2", "p3", "p4"} {
		b.Publish(TopicOptimizationProgress, payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p3", first.Payload)

	second, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p4", second.Payload)

	stats := sub.Stats()
	assert.Equal(t, uint64(2), stats.Dropped)
}

func TestBlockProducerPolicy(t *testing.T) {
	b := newTestBus(t, WithQueueSize(1))

	policy := PolicyBlockProducer

	sub, err := b.Subscribe([]Topic{TopicTrainsetStatusChanged}, nil, &policy)
	require.NoError(t, err)

	b.Publish(TopicTrainsetStatusChanged, "first")

	unblocked := make(chan struct{})

	go func() {
		b.Publish(TopicTrainsetStatusChanged, "second")
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("publish should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", event.Payload)

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("publish should unblock once the consumer drains")
	}
}

func TestDropSubscriptionPolicy(t *testing.T) {
	b := newTestBus(t, WithQueueSize(1), WithGrace(30*time.Millisecond))

	policy := PolicyDropSubscription

	sub, err := b.Subscribe([]Topic{TopicJobCardUpdated}, nil, &policy)
	require.NoError(t, err)

	b.Publish(TopicJobCardUpdated, "first")
	b.Publish(TopicJobCardUpdated, "overflow")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The queued event is still delivered; only then does the slow-consumer
	// disconnect surface.
	event, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", event.Payload)

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, ErrSubscriptionSlow)
}

func TestEmergencyAlertJumpsQueue(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe([]Topic{TopicDecisionGenerated, TopicEmergencyAlert}, nil, nil)
	require.NoError(t, err)

	b.Publish(TopicDecisionGenerated, "routine")
	b.Publish(TopicEmergencyAlert, "fire")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TopicEmergencyAlert, first.Kind)

	second, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "routine", second.Payload)
}

func TestCloseDrainsBeforeClosing(t *testing.T) {
	b := New(slog.New(slog.DiscardHandler))

	sub, err := b.Subscribe([]Topic{TopicSystemNotification}, nil, nil)
	require.NoError(t, err)

	b.Publish(TopicSystemNotification, "pending")
	b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pending", event.Payload)

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, ErrSubscriptionClosed)

	_, err = b.Subscribe([]Topic{TopicSystemNotification}, nil, nil)
	require.ErrorIs(t, err, ErrBusClosed)
}

func TestUnsubscribeClosesSubscription(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe([]Topic{TopicMaintenanceAlert}, nil, nil)
	require.NoError(t, err)

	b.Unsubscribe(sub.ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestNextHonorsContext(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe([]Topic{TopicScheduleUpdated}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
