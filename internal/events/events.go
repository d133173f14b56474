package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the events queue.
const (
	TypeOrderPlaced       = "order.placed"
	TypeOrderCancelled    = "order.cancelled"
	TypePaymentCompleted  = "payment.completed"
	TypeAccountActivation = "account.activation"
	TypePasswordReset     = "account.password_reset"
)

// Envelope is the message shape sent from the API to the worker.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderPayload describes an order lifecycle event.
type OrderPayload struct {
	OrderID  string  `json:"order_id"`
	OrderRef string  `json:"order_ref"`
	UserID   string  `json:"user_id"`
	Price    float64 `json:"price"`
	Items    int     `json:"items"`
}

// PaymentPayload describes a reconciled payment.
type PaymentPayload struct {
	PaymentID string  `json:"payment_id"`
	OrderID   string  `json:"order_id"`
	Amount    float64 `json:"amount"`
	Gateway   string  `json:"gateway"`
}

// EmailPayload is an account email the worker hands to a mail sender.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Publisher delivers envelopes to the worker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// New wraps payload into a versioned envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

// Discard drops every event. Used when no queue is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Envelope) error { return nil }
