package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/inductor-io/inductor/internal/config"
)

// ErrMirrorDisabled is returned when no brokers are configured.
var ErrMirrorDisabled = errors.New("kafka mirror disabled: no brokers configured")

const (
	defaultMirrorTopic   = "inductor.events"
	mirrorWriteTimeout   = 5 * time.Second
	breakerOpenTimeout   = 30 * time.Second
	breakerFailureCount  = 5
	mirrorChannelBacklog = 256
)

type (
	// MessageWriter is the slice of kafka.Writer the mirror needs; tests
	// substitute an in-memory implementation.
	MessageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// MirrorConfig holds Kafka mirror settings loaded from ENV.
	MirrorConfig struct {
		Brokers []string
		Topic   string
	}

	// Mirror forwards every bus envelope to a Kafka topic so off-process
	// consumers (dashboards, archives) see the same stream. A circuit
	// breaker keeps a dead broker from stalling in-process delivery; the
	// mirror subscribes with drop_oldest so it can never block producers.
	Mirror struct {
		logger  *slog.Logger
		writer  MessageWriter
		breaker *gobreaker.CircuitBreaker
		sub     *Subscription
		bus     *Bus
		cancel  context.CancelFunc
		done    chan struct{}
	}
)

// LoadMirrorConfig reads Kafka mirror settings from environment variables.
// An empty KAFKA_BROKERS disables the mirror.
func LoadMirrorConfig() *MirrorConfig {
	return &MirrorConfig{
		Brokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		Topic:   config.GetEnvStr("KAFKA_EVENTS_TOPIC", defaultMirrorTopic),
	}
}

// Enabled reports whether brokers are configured.
func (c *MirrorConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewWriter builds the kafka-go writer for the configured brokers.
func (c *MirrorConfig) NewWriter() MessageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// StartMirror subscribes to all topics and pumps envelopes to Kafka until
// Stop is called. Returns ErrMirrorDisabled when no brokers are configured.
func StartMirror(b *Bus, cfg *MirrorConfig, writer MessageWriter, logger *slog.Logger) (*Mirror, error) {
	if cfg != nil && !cfg.Enabled() && writer == nil {
		return nil, ErrMirrorDisabled
	}

	if writer == nil {
		writer = cfg.NewWriter()
	}

	// The mirror is a best-effort tap; it must never exert backpressure.
	policy := PolicyDropOldest

	sub, err := b.Subscribe(AllTopics(), nil, &policy)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe kafka mirror: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kafka-mirror",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureCount
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Kafka mirror breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())

	mirror := &Mirror{
		logger:  logger,
		writer:  writer,
		breaker: breaker,
		sub:     sub,
		bus:     b,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go mirror.pump(ctx)

	return mirror, nil
}

// Stop halts the pump and closes the writer.
func (m *Mirror) Stop() {
	m.cancel()
	<-m.done

	m.bus.Unsubscribe(m.sub.ID)

	if err := m.writer.Close(); err != nil {
		m.logger.Warn("Failed to close kafka writer", slog.String("error", err.Error()))
	}
}

func (m *Mirror) pump(ctx context.Context) {
	defer close(m.done)

	for {
		event, err := m.sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSubscriptionClosed) {
				m.logger.Error("Kafka mirror stopped", slog.String("error", err.Error()))
			}

			return
		}

		if err := m.forward(ctx, event); err != nil {
			// Breaker-open and broker failures are absorbed: the mirror is
			// lossy by contract, in-process delivery is not affected.
			m.logger.Debug("Kafka mirror dropped event",
				slog.Uint64("seq", event.Seq),
				slog.String("kind", string(event.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Mirror) forward(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %d: %w", event.Seq, err)
	}

	_, err = m.breaker.Execute(func() (any, error) {
		writeCtx, cancel := context.WithTimeout(ctx, mirrorWriteTimeout)
		defer cancel()

		return nil, m.writer.WriteMessages(writeCtx, kafka.Message{
			Key:   []byte(event.Kind),
			Value: payload,
			Time:  event.EmittedAt,
		})
	})

	return err
}
