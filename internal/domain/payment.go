package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderCardrail Provider = "cardrail"
	ProviderWallet   Provider = "wallet"
)

func (p Provider) IsValid() bool {
	switch p {
	case ProviderCardrail, ProviderWallet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// transitions is the full state machine. A status missing from the map is
// terminal.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusSucceeded, PaymentStatusFailed},
	PaymentStatusSucceeded:  {PaymentStatusRefunded},
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusSucceeded,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type PaymentRecord struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	UserID            uuid.UUID
	Amount            int64
	Currency          string
	Provider          Provider
	ProviderPaymentID string
	Status            PaymentStatus
	PaymentMethodID   *string
	FailureReason     *string
	RefundedAmount    *int64
	RefundReason      *string
	Metadata          json.RawMessage
	ConfirmedAt       *time.Time
	RefundedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
