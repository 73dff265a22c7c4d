package eventlog

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Publisher writes committed events to the ledger topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher constructs a Kafka publisher for the given topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish appends one message to the log. The key selects the partition, so
// messages sharing a key are totally ordered.
func (p *Publisher) Publish(ctx context.Context, key string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("eventlog: publish: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
