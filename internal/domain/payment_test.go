package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/payments/internal/domain"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct {
		from, to domain.PaymentStatus
	}{
		{domain.PaymentStatusPending, domain.PaymentStatusProcessing},
		{domain.PaymentStatusPending, domain.PaymentStatusSucceeded},
		{domain.PaymentStatusPending, domain.PaymentStatusFailed},
		{domain.PaymentStatusPending, domain.PaymentStatusCancelled},
		{domain.PaymentStatusProcessing, domain.PaymentStatusSucceeded},
		{domain.PaymentStatusProcessing, domain.PaymentStatusFailed},
		{domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct {
		from, to domain.PaymentStatus
	}{
		{domain.PaymentStatusProcessing, domain.PaymentStatusCancelled},
		{domain.PaymentStatusProcessing, domain.PaymentStatusPending},
		{domain.PaymentStatusSucceeded, domain.PaymentStatusFailed},
		{domain.PaymentStatusFailed, domain.PaymentStatusSucceeded},
		{domain.PaymentStatusCancelled, domain.PaymentStatusPending},
		{domain.PaymentStatusRefunded, domain.PaymentStatusSucceeded},
		{domain.PaymentStatusPending, domain.PaymentStatusRefunded},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, domain.PaymentStatusPending.IsTerminal())
	assert.False(t, domain.PaymentStatusProcessing.IsTerminal())
	assert.False(t, domain.PaymentStatusSucceeded.IsTerminal())
	assert.True(t, domain.PaymentStatusFailed.IsTerminal())
	assert.True(t, domain.PaymentStatusCancelled.IsTerminal())
	assert.True(t, domain.PaymentStatusRefunded.IsTerminal())
}

func TestStatusFromEvents(t *testing.T) {
	assert.Equal(t, domain.PaymentStatusPending, domain.StatusFromEvents(nil))

	events := []domain.DomainEvent{
		{Type: domain.EventTypePaymentProcessing},
		{Type: domain.EventTypePaymentSucceeded},
	}
	assert.Equal(t, domain.PaymentStatusSucceeded, domain.StatusFromEvents(events))

	events = append(events, domain.DomainEvent{Type: domain.EventTypePaymentRefunded})
	assert.Equal(t, domain.PaymentStatusRefunded, domain.StatusFromEvents(events))
}

func TestNewPaymentEvent(t *testing.T) {
	p := &domain.PaymentRecord{
		Amount:   1200,
		Currency: "EUR",
		Provider: domain.ProviderWallet,
	}
	reason := "card declined"

	event, err := domain.NewPaymentEvent(domain.EventTypePaymentFailed, p, &reason, map[string]string{"source": "webhook"})
	require.NoError(t, err)

	assert.Equal(t, domain.EventTypePaymentFailed, event.Type)
	assert.Equal(t, domain.AggregateTypePayment, event.AggregateType)
	assert.Equal(t, p.ID, event.AggregateID)
	assert.NotZero(t, event.ID)
	assert.JSONEq(t, `{
		"paymentId": "00000000-0000-0000-0000-000000000000",
		"orderId": "00000000-0000-0000-0000-000000000000",
		"userId": "00000000-0000-0000-0000-000000000000",
		"amount": 1200,
		"currency": "EUR",
		"provider": "wallet",
		"reason": "card declined"
	}`, string(event.Payload))
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, domain.ValidCurrency("USD"))
	assert.True(t, domain.ValidCurrency("NGN"))
	assert.False(t, domain.ValidCurrency("usd"))
	assert.False(t, domain.ValidCurrency("US"))
	assert.False(t, domain.ValidCurrency("DOLLARS"))
}
