package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/commercekit/payments/internal/domain"
)

// Handler processes one dispatched event. Delivery is at-least-once, so
// handlers must be idempotent; effect-level dedup belongs to the callers'
// idempotency guard, not the bus.
type Handler func(ctx context.Context, event domain.DomainEvent) error

// Bus fans events out to the handlers registered for their type. The
// registry is an explicit map built at startup; dispatch walks the
// handlers in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish dispatches the event to every registered handler. Each handler
// runs isolated: a failure (or panic) is captured and reported without
// preventing dispatch to the rest. The returned error joins all handler
// failures.
func (b *Bus) Publish(ctx context.Context, event domain.DomainEvent) error {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := b.invoke(ctx, h, event); err != nil {
			b.logger.Error("event handler failed",
				"event_type", event.Type,
				"event_id", event.ID,
				"handler_index", i,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler %d for %s: %w", i, event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// PublishMany dispatches every event, aggregating per-event failures
// instead of stopping at the first one.
func (b *Bus) PublishMany(ctx context.Context, events []domain.DomainEvent) error {
	var errs []error
	for _, e := range events {
		if err := b.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) invoke(ctx context.Context, h Handler, event domain.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, event)
}
