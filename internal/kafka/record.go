package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rusikfsk/unichat/internal/domain"
)

// Record is the value written for every produced event.
type Record struct {
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	ProducedAt time.Time       `json:"produced_at"`
	Payload    json.RawMessage `json:"payload"`
}

// EncodeRecord wraps event in a Record stamped with now.
func EncodeRecord(key string, event domain.Event, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.EventType(), err)
	}
	value, err := json.Marshal(Record{
		Type:       event.EventType(),
		Key:        key,
		ProducedAt: now.UTC(),
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return value, nil
}
