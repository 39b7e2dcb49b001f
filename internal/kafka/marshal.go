package kafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HTM0410/sale-account-sub001/internal/orders"
)

// DecodeEnvelope parses a message value and rejects envelopes without a type or id.
func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType == "" || env.EventID == "" {
		return env, errors.New("decode envelope: missing event_type or event_id")
	}
	return env, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
