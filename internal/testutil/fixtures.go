package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
)

// SeedPayment inserts a payment row directly, bypassing the service, for
// tests that need a payment in a given starting state.
func SeedPayment(t *testing.T, db *sql.DB, status domain.PaymentStatus, prov domain.Provider) *domain.PaymentRecord {
	t.Helper()

	now := time.Now().UTC()
	p := &domain.PaymentRecord{
		ID:                uuid.New(),
		OrderID:           uuid.New(),
		UserID:            uuid.New(),
		Amount:            2500,
		Currency:          "USD",
		Provider:          prov,
		ProviderPaymentID: fmt.Sprintf("%s_%s", prov, uuid.NewString()[:8]),
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := db.Exec(
		`INSERT INTO payments (
			id, order_id, user_id, amount, currency, provider,
			provider_payment_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.OrderID, p.UserID, p.Amount, p.Currency, p.Provider,
		p.ProviderPaymentID, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func GetPaymentStatus(t *testing.T, db *sql.DB, paymentID uuid.UUID) domain.PaymentStatus {
	t.Helper()

	var status domain.PaymentStatus
	err := db.QueryRow(`SELECT status FROM payments WHERE id = $1`, paymentID).Scan(&status)
	if err != nil {
		t.Fatalf("get payment status %s: %v", paymentID, err)
	}
	return status
}

func CountStreamEvents(t *testing.T, db *sql.DB, aggregateID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM event_log WHERE aggregate_id = $1`, aggregateID).Scan(&count)
	if err != nil {
		t.Fatalf("count stream events for %s: %v", aggregateID, err)
	}
	return count
}

func CountProcessedWebhooks(t *testing.T, db *sql.DB, prov domain.Provider) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM processed_webhook_events WHERE provider = $1`, prov).Scan(&count)
	if err != nil {
		t.Fatalf("count processed webhooks for %s: %v", prov, err)
	}
	return count
}
