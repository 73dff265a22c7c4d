// Package outbox implements the transactional outbox: events are staged in
// the same durable transaction as the domain write they describe and drained
// into the committed-event log by a background dispatcher.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates the outbox message lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// Message is one staged event. The write path creates it; only the
// dispatcher transitions its status.
type Message struct {
	ID           uuid.UUID
	Topic        string
	PartitionKey string
	Payload      []byte
	Status       Status
	RetryCount   int
	CreatedAt    time.Time
	PublishedAt  *time.Time
}

// NewMessage builds a Pending message for staging.
func NewMessage(topic, partitionKey string, payload []byte) Message {
	return Message{
		ID:           uuid.New(),
		Topic:        topic,
		PartitionKey: partitionKey,
		Payload:      payload,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}
