package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types, carried in the AMQP "type" property.
const (
	TypeRecordChanged = "record.changed"
	TypeSnapshotSaved = "snapshot.saved"
)

// Event is a message the household service emits after a write succeeds.
type Event interface {
	EventType() string
}

// RecordChanged is published for every confirmed record mutation. Month is
// the YYYY-MM the record's date falls in, empty for undated kinds.
type RecordChanged struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Op        string    `json:"op"`
	Month     string    `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (*RecordChanged) EventType() string { return TypeRecordChanged }

// SnapshotSaved is published after an investment snapshot upsert.
type SnapshotSaved struct {
	UserID           string    `json:"userId"`
	Date             string    `json:"date"`
	InvestmentAmount int64     `json:"investmentAmount"`
	BrokerTotal      int64     `json:"brokerTotal"`
	Timestamp        time.Time `json:"timestamp"`
}

func (*SnapshotSaved) EventType() string { return TypeSnapshotSaved }

// Decode parses body according to the message type.
func Decode(eventType string, body []byte) (Event, error) {
	var ev Event
	switch eventType {
	case TypeRecordChanged:
		ev = &RecordChanged{}
	case TypeSnapshotSaved:
		ev = &SnapshotSaved{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err := json.Unmarshal(body, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return ev, nil
}
