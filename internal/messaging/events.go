package messaging

import (
	"encoding/json"

	"matchbook/internal/models"
)

// EventType identifies a domain event on the wire. Event types double
// as routing keys and queue names.
type EventType string

const (
	EventOrderPlaced    EventType = "order.placed"
	EventOrderCancelled EventType = "order.cancelled"
	EventTradeExecuted  EventType = "trade.executed"
)

// DomainEvent is the envelope carried by every published message.
// Payload stays raw until the consumer knows the concrete type.
type DomainEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
	TraceID string          `json:"trace_id"`
}

// NewEvent wraps a payload in an envelope.
func NewEvent(eventType EventType, payload interface{}, traceID string) (*DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &DomainEvent{
		Type:    eventType,
		Payload: raw,
		TraceID: traceID,
	}, nil
}

// OrderPlacedPayload carries an accepted order with its post-matching
// state.
type OrderPlacedPayload struct {
	Order *models.Order `json:"order"`
}

// TradeExecutedPayload carries a trade plus the post-fill state of both
// participating orders, so the journal can be updated atomically.
type TradeExecutedPayload struct {
	Trade *models.Trade `json:"trade"`
	Maker *models.Order `json:"maker,omitempty"`
	Taker *models.Order `json:"taker,omitempty"`
}

// OrderCancelledPayload carries a cancellation.
type OrderCancelledPayload struct {
	OrderID int64  `json:"order_id"`
	Pair    string `json:"pair"`
}
