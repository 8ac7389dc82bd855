package notification_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/eventbus"
	"github.com/commercekit/payments/internal/notification"
	"github.com/commercekit/payments/internal/repository"
	"github.com/commercekit/payments/internal/testutil"
)

type captureSender struct {
	mu   sync.Mutex
	sent []repository.OutboxNotification
	err  error
}

func (s *captureSender) Send(ctx context.Context, n repository.OutboxNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func paymentEvent(t *testing.T, eventType string) domain.DomainEvent {
	t.Helper()
	p := &domain.PaymentRecord{
		ID:       uuid.New(),
		OrderID:  uuid.New(),
		UserID:   uuid.New(),
		Amount:   2500,
		Currency: "USD",
		Provider: domain.ProviderCardrail,
	}
	event, err := domain.NewPaymentEvent(eventType, p, nil, nil)
	require.NoError(t, err)
	return event
}

func outboxRow(t *testing.T, db *sql.DB, eventID uuid.UUID) (status string, attempts int) {
	t.Helper()
	err := db.QueryRow(
		`SELECT status, attempts FROM notification_outbox WHERE event_id = $1`, eventID,
	).Scan(&status, &attempts)
	require.NoError(t, err)
	return status, attempts
}

func countOutbox(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notification_outbox`).Scan(&n))
	return n
}

func TestConsumer_EnqueuesCustomerFacingEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	bus := eventbus.New(slog.Default())
	notification.NewConsumer(repository.NewNotificationOutboxRepository(db)).Subscribe(bus)
	ctx := context.Background()

	event := paymentEvent(t, domain.EventTypePaymentSucceeded)
	require.NoError(t, bus.Publish(ctx, event))

	status, attempts := outboxRow(t, db, event.ID)
	assert.Equal(t, "pending", status)
	assert.Equal(t, 0, attempts)
}

func TestConsumer_InternalEventsAreNotQueued(t *testing.T) {
	db := testutil.SetupTestDB(t)
	bus := eventbus.New(slog.Default())
	notification.NewConsumer(repository.NewNotificationOutboxRepository(db)).Subscribe(bus)

	require.NoError(t, bus.Publish(context.Background(), paymentEvent(t, domain.EventTypePaymentProcessing)))
	assert.Equal(t, 0, countOutbox(t, db))
}

func TestConsumer_RedeliveredEventCollapses(t *testing.T) {
	db := testutil.SetupTestDB(t)
	bus := eventbus.New(slog.Default())
	notification.NewConsumer(repository.NewNotificationOutboxRepository(db)).Subscribe(bus)
	ctx := context.Background()

	event := paymentEvent(t, domain.EventTypePaymentRefunded)
	require.NoError(t, bus.Publish(ctx, event))
	require.NoError(t, bus.Publish(ctx, event))

	assert.Equal(t, 1, countOutbox(t, db))
}

func TestDispatcher_DeliversAndMarksDispatched(t *testing.T) {
	db := testutil.SetupTestDB(t)
	outbox := repository.NewNotificationOutboxRepository(db)
	sender := &captureSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := paymentEvent(t, domain.EventTypePaymentSucceeded)
	require.NoError(t, outbox.Enqueue(ctx, &repository.OutboxNotification{
		ID:        uuid.New(),
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Payload,
		Status:    repository.NotificationStatusPending,
		CreatedAt: time.Now(),
	}))

	go notification.NewDispatcher(outbox, sender, slog.Default(), 10*time.Millisecond).Start(ctx)

	require.Eventually(t, func() bool { return sender.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		status, _ := outboxRow(t, db, event.ID)
		return status == "dispatched"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, event.Type, sender.sent[0].EventType)
}

func TestDispatcher_SenderFailureMarksFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	outbox := repository.NewNotificationOutboxRepository(db)
	sender := &captureSender{err: errors.New("gateway down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := paymentEvent(t, domain.EventTypePaymentFailed)
	require.NoError(t, outbox.Enqueue(ctx, &repository.OutboxNotification{
		ID:        uuid.New(),
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Payload,
		Status:    repository.NotificationStatusPending,
		CreatedAt: time.Now(),
	}))

	go notification.NewDispatcher(outbox, sender, slog.Default(), 10*time.Millisecond).Start(ctx)

	require.Eventually(t, func() bool {
		status, attempts := outboxRow(t, db, event.ID)
		return status == "failed" && attempts == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, sender.count())
}

func TestLogSender_DecodesPayload(t *testing.T) {
	sender := notification.NewLogSender(slog.Default())
	event := paymentEvent(t, domain.EventTypePaymentSucceeded)

	err := sender.Send(context.Background(), repository.OutboxNotification{
		ID:        uuid.New(),
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Payload,
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), repository.OutboxNotification{Payload: []byte(`{`)})
	require.Error(t, err)
}
