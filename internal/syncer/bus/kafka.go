package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/config"
	"github.com/indexflow-go/pkg/logger"
)

// KafkaBus consumes change events from a Kafka topic. Messages are keyed by
// record identity, so a single-partition-per-key topic preserves per-identity
// order. The bus also exposes Publish so producers embedded in the record
// store (the ORM bridge) can emit onto the same topic.
type KafkaBus struct {
	config config.KafkaConfig
	writer *kafka.Writer
	reader *kafka.Reader
	logger logger.Logger

	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int

	consumeOnce sync.Once
	cancel      context.CancelFunc
	done        chan struct{}
	closed      bool
}

func NewKafkaBus(cfg config.KafkaConfig, log logger.Logger) *KafkaBus {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	})

	return &KafkaBus{
		config:   cfg,
		writer:   writer,
		logger:   log,
		handlers: make(map[int]Handler),
		done:     make(chan struct{}),
	}
}

func (b *KafkaBus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	b.consumeOnce.Do(b.startConsumer)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

func (b *KafkaBus) Publish(ctx context.Context, event change.Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Identity.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "change-kind", Value: []byte(event.Kind)},
		},
	}

	return b.writer.WriteMessages(ctx, msg)
}

func (b *KafkaBus) startConsumer() {
	b.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.config.Brokers,
		Topic:       b.config.Topic,
		GroupID:     b.config.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	go b.consume(ctx)
}

func (b *KafkaBus) consume(ctx context.Context) {
	defer close(b.done)

	for {
		msg, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			b.logger.Error("Failed to read change message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event change.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			b.logger.Error("Dropping malformed change message",
				"error", err, "offset", msg.Offset)
			continue
		}

		b.dispatch(ctx, event)
	}
}

func (b *KafkaBus) dispatch(ctx context.Context, event change.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Error("Change handler failed",
				"error", err, "identity", event.Identity.String(), "kind", event.Kind)
		}
	}
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
		<-b.done
	}

	var errs []error
	if b.reader != nil {
		if err := b.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader: %w", err))
		}
	}
	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
	}
	return errors.Join(errs...)
}
