package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID  string     `json:"order_id"`
	UserID   string     `json:"user_id"`
	Items    []LineItem `json:"items"`
	Total    int64      `json:"total"`
	Provider string     `json:"provider,omitempty"`
}

type OrderStatusChangedPayload struct {
	OrderID  string     `json:"order_id"`
	UserID   string     `json:"user_id"`
	From     Status     `json:"from"`
	To       Status     `json:"to"`
	Total    int64      `json:"total"`
	Provider string     `json:"provider,omitempty"`
	Actor    string     `json:"actor,omitempty"` // admin user id for manual updates
	Customer Customer   `json:"customer"`
	Items    []LineItem `json:"items,omitempty"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`
}
