package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"sentinel-ids/internal/config"
)

// ErrPublisherClosed is returned by a publish after Close.
var ErrPublisherClosed = fmt.Errorf("alerting: publisher is closed")

// Publisher delivers alert payloads to downstream consumers.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, value any) error
	Close() error
}

// KafkaPublisher publishes alerts to a Kafka topic, keyed by IP so that all
// alerts for one IP land in the same partition.
type KafkaPublisher struct {
	writer     *kafka.Writer
	maxRetries int
	closed     atomic.Bool
}

// NewKafkaPublisher creates a publisher for the configured brokers and topic.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			slog.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	slog.Info("kafka alert publisher initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	return &KafkaPublisher{
		writer:     writer,
		maxRetries: cfg.MaxRetries,
	}
}

// PublishJSON marshals the value and writes it to the topic with retries.
func (p *KafkaPublisher) PublishJSON(ctx context.Context, key string, value any) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("alerting: failed to marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		if err := p.writer.WriteMessages(ctx, msg); err == nil {
			return nil
		} else {
			lastErr = err
			slog.Warn("alert publish failed",
				"attempt", attempt+1,
				"max_attempts", p.maxRetries+1,
				"error", err,
			)
		}
	}

	return fmt.Errorf("alerting: publish failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

// Close flushes buffered messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
