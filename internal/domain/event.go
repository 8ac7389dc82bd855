package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const AggregateTypePayment = "Payment"

const (
	EventTypePaymentProcessing = "payment.processing"
	EventTypePaymentSucceeded  = "payment.succeeded"
	EventTypePaymentFailed     = "payment.failed"
	EventTypePaymentCancelled  = "payment.cancelled"
	EventTypePaymentRefunded   = "payment.refunded"
)

// DomainEvent is a single tagged variant for every event in the system.
// Type is the discriminant; Payload's shape is keyed by it. Version is the
// schema version of the payload, not the event's position in its stream.
type DomainEvent struct {
	ID            uuid.UUID         `json:"id"`
	Type          string            `json:"type"`
	AggregateID   uuid.UUID         `json:"aggregateId"`
	AggregateType string            `json:"aggregateType"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
	Version       int               `json:"version"`
}

// PaymentEventPayload is the payload shape shared by all payment.* events.
type PaymentEventPayload struct {
	PaymentID uuid.UUID `json:"paymentId"`
	OrderID   uuid.UUID `json:"orderId"`
	UserID    uuid.UUID `json:"userId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Provider  Provider  `json:"provider"`
	Reason    *string   `json:"reason,omitempty"`
}

func NewPaymentEvent(eventType string, p *PaymentRecord, reason *string, metadata map[string]string) (DomainEvent, error) {
	payload, err := json.Marshal(PaymentEventPayload{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Provider:  p.Provider,
		Reason:    reason,
	})
	if err != nil {
		return DomainEvent{}, err
	}

	return DomainEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   p.ID,
		AggregateType: AggregateTypePayment,
		Payload:       payload,
		Metadata:      metadata,
		OccurredAt:    time.Now().UTC(),
		Version:       1,
	}, nil
}

// StatusFromEvents replays a payment's stream and returns the status it
// implies. An empty stream is a freshly created intent.
func StatusFromEvents(events []DomainEvent) PaymentStatus {
	status := PaymentStatusPending
	for _, e := range events {
		switch e.Type {
		case EventTypePaymentProcessing:
			status = PaymentStatusProcessing
		case EventTypePaymentSucceeded:
			status = PaymentStatusSucceeded
		case EventTypePaymentFailed:
			status = PaymentStatusFailed
		case EventTypePaymentCancelled:
			status = PaymentStatusCancelled
		case EventTypePaymentRefunded:
			status = PaymentStatusRefunded
		}
	}
	return status
}

// EventTypeForStatus maps a target status to the event recording the
// transition into it. PENDING has no event: creation is not a transition.
func EventTypeForStatus(status PaymentStatus) (string, bool) {
	switch status {
	case PaymentStatusProcessing:
		return EventTypePaymentProcessing, true
	case PaymentStatusSucceeded:
		return EventTypePaymentSucceeded, true
	case PaymentStatusFailed:
		return EventTypePaymentFailed, true
	case PaymentStatusCancelled:
		return EventTypePaymentCancelled, true
	case PaymentStatusRefunded:
		return EventTypePaymentRefunded, true
	}
	return "", false
}
