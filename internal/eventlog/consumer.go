package eventlog

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Consumer reads the ledger topic as part of a consumer group. Offsets are
// committed explicitly after a message has been applied, giving at-least-once
// processing.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer constructs a group consumer for the given topic.
func NewConsumer(brokers []string, topic, group string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

// Fetch blocks until the next message or context cancellation.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("eventlog: fetch: %w", err)
	}
	return msg, nil
}

// Commit acknowledges a processed message.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("eventlog: commit: %w", err)
	}
	return nil
}

// Close shuts the reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
