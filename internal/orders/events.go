package orders

import (
	"encoding/json"
	"time"
)

const EventOrderStatusChanged = "OrderStatusChanged"

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

// StatusChange describes one committed lifecycle transition. Order is the state
// after the transition was persisted.
type StatusChange struct {
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	ActorID    string    `json:"actor_id"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Order      Order     `json:"order"`
}

// WantsInvoice reports whether the change should carry a rendered invoice.
func (c StatusChange) WantsInvoice() bool { return c.To == StatusDelivered }
