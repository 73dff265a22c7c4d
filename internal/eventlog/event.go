// Package eventlog defines the committed-event contract and the Kafka-backed
// log transport shared by the outbox dispatcher and the projection worker.
package eventlog

import (
	"encoding/json"
	"fmt"
)

// BalanceMovedEvent is the wire contract for a committed money movement.
// Multiple independent consumers read the same stream, so changes must stay
// additive: never rename or repurpose an existing field.
//
// A fast transfer sets both Source and Dest. A multi-line journal posting is
// decomposed into one event per affected account, with the unused side left
// empty.
type BalanceMovedEvent struct {
	TenantID      string `json:"tenant"`
	Source        string `json:"source"`
	Dest          string `json:"dest"`
	MinorAmount   int64  `json:"minor_amount"`
	Currency      string `json:"currency"`
	EntryID       string `json:"entry_id"`
	BookingTimeMs int64  `json:"booking_time_ms"`

	// Absolute balances after the movement. Additive fields consumed by the
	// balance projection; older consumers may ignore them.
	SourceBalanceAfter *int64 `json:"source_balance_after,omitempty"`
	DestBalanceAfter   *int64 `json:"dest_balance_after,omitempty"`
}

// PartitionKey keeps every event of a tenant on one partition so that
// per-account ordering holds for the projection.
func (e BalanceMovedEvent) PartitionKey() string {
	return e.TenantID
}

// Encode serialises the event payload.
func (e BalanceMovedEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode: %w", err)
	}
	return data, nil
}

// DecodeBalanceMoved parses an event payload from the log.
func DecodeBalanceMoved(data []byte) (BalanceMovedEvent, error) {
	var evt BalanceMovedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return BalanceMovedEvent{}, fmt.Errorf("eventlog: decode: %w", err)
	}
	if evt.TenantID == "" {
		return BalanceMovedEvent{}, fmt.Errorf("eventlog: decode: missing tenant")
	}
	return evt, nil
}
