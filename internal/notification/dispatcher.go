package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/repository"
)

const dispatchBatchSize = 10

// Sender delivers one notification to its sink. Implementations must
// tolerate redelivery.
type Sender interface {
	Send(ctx context.Context, n repository.OutboxNotification) error
}

type outboxReader interface {
	GetPending(ctx context.Context, limit int) ([]repository.OutboxNotification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status repository.NotificationStatus) error
}

type Dispatcher struct {
	outbox   outboxReader
	sender   Sender
	logger   *slog.Logger
	interval time.Duration
}

func NewDispatcher(outbox *repository.NotificationOutboxRepository, sender Sender, logger *slog.Logger, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		sender:   sender,
		logger:   logger,
		interval: interval,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("notification dispatcher started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	pending, err := d.outbox.GetPending(ctx, dispatchBatchSize)
	if err != nil {
		d.logger.Error("failed to fetch pending notifications", "error", err)
		return
	}

	for _, n := range pending {
		if err := d.dispatch(ctx, n); err != nil {
			d.logger.Error("failed to dispatch notification",
				"notification_id", n.ID,
				"event_type", n.EventType,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, n repository.OutboxNotification) error {
	if err := d.sender.Send(ctx, n); err != nil {
		if uerr := d.outbox.UpdateStatus(ctx, n.ID, repository.NotificationStatusFailed); uerr != nil {
			return fmt.Errorf("dispatch: %w (mark failed: %v)", err, uerr)
		}
		return fmt.Errorf("dispatch: %w", err)
	}
	return d.outbox.UpdateStatus(ctx, n.ID, repository.NotificationStatusDispatched)
}

// LogSender writes notifications to the log. It stands in for a mail or
// push gateway.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n repository.OutboxNotification) error {
	var payload domain.PaymentEventPayload
	if err := json.Unmarshal(n.Payload, &payload); err != nil {
		return fmt.Errorf("Send: decode payload: %w", err)
	}
	s.logger.InfoContext(ctx, "payment notification",
		"event_type", n.EventType,
		"payment_id", payload.PaymentID,
		"order_id", payload.OrderID,
		"user_id", payload.UserID,
		"amount", payload.Amount,
		"currency", payload.Currency,
	)
	return nil
}
