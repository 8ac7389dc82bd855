// Package notification durably records payment events that customers care
// about and delivers them out of band. The bus handler only enqueues into
// an outbox; a polling dispatcher owns delivery and retries, so a slow or
// failing sink never blocks the payment path.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/eventbus"
	"github.com/commercekit/payments/internal/repository"
)

type outboxWriter interface {
	Enqueue(ctx context.Context, n *repository.OutboxNotification) error
}

type Consumer struct {
	outbox outboxWriter
}

func NewConsumer(outbox *repository.NotificationOutboxRepository) *Consumer {
	return &Consumer{outbox: outbox}
}

// Subscribe registers the consumer for the event types that notify
// customers.
func (c *Consumer) Subscribe(bus *eventbus.Bus) {
	for _, eventType := range []string{
		domain.EventTypePaymentSucceeded,
		domain.EventTypePaymentFailed,
		domain.EventTypePaymentRefunded,
	} {
		bus.Subscribe(eventType, c.handle)
	}
}

// handle enqueues one notification per event. The outbox is unique on the
// event id, so redelivered events collapse into the row already queued.
func (c *Consumer) handle(ctx context.Context, event domain.DomainEvent) error {
	err := c.outbox.Enqueue(ctx, &repository.OutboxNotification{
		ID:        uuid.New(),
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Payload,
		Status:    repository.NotificationStatusPending,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("handle: %w", err)
	}
	return nil
}
