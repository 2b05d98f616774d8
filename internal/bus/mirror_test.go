package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	fail     error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fail != nil {
		return w.fail
	}

	w.messages = append(w.messages, msgs...)

	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true

	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.messages)
}

func TestMirrorDisabledWithoutBrokers(t *testing.T) {
	b := newTestBus(t)

	_, err := StartMirror(b, &MirrorConfig{}, nil, slog.New(slog.DiscardHandler))
	require.ErrorIs(t, err, ErrMirrorDisabled)
}

func TestMirrorForwardsEvents(t *testing.T) {
	b := newTestBus(t)
	writer := &fakeWriter{}

	mirror, err := StartMirror(b, &MirrorConfig{}, writer, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	b.Publish(TopicDecisionGenerated, map[string]string{"decision_id": "d-1"})
	b.Publish(TopicTrainsetStatusChanged, map[string]string{"trainset_id": "ts-001"})

	require.Eventually(t, func() bool {
		return writer.count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	mirror.Stop()

	writer.mu.Lock()
	defer writer.mu.Unlock()

	assert.True(t, writer.closed)
	assert.Equal(t, []byte(TopicDecisionGenerated), writer.messages[0].Key)
	assert.Contains(t, string(writer.messages[0].Value), "d-1")
}

func TestMirrorAbsorbsBrokerFailures(t *testing.T) {
	b := newTestBus(t)
	writer := &fakeWriter{fail: errors.New("broker down")}

	mirror, err := StartMirror(b, &MirrorConfig{}, writer, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	// Enough failures to trip the breaker; in-process delivery must stay
	// unaffected.
	for range 10 {
		b.Publish(TopicOptimizationProgress, nil)
	}

	sub, err := b.Subscribe([]Topic{TopicDecisionGenerated}, nil, nil)
	require.NoError(t, err)

	b.Publish(TopicDecisionGenerated, "still flowing")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event, nextErr := sub.Next(ctx)
	require.NoError(t, nextErr)
	assert.Equal(t, "still flowing", event.Payload)

	mirror.Stop()
	assert.Zero(t, writer.count())
}
