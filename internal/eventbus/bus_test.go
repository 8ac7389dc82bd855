package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/eventbus"
)

func event(eventType string) domain.DomainEvent {
	return domain.DomainEvent{ID: uuid.New(), Type: eventType}
}

func TestBus_PublishDispatchesToSubscribers(t *testing.T) {
	bus := eventbus.New(slog.Default())
	ctx := context.Background()

	var got []string
	bus.Subscribe(domain.EventTypePaymentSucceeded, func(ctx context.Context, e domain.DomainEvent) error {
		got = append(got, "first")
		return nil
	})
	bus.Subscribe(domain.EventTypePaymentSucceeded, func(ctx context.Context, e domain.DomainEvent) error {
		got = append(got, "second")
		return nil
	})
	bus.Subscribe(domain.EventTypePaymentFailed, func(ctx context.Context, e domain.DomainEvent) error {
		got = append(got, "wrong type")
		return nil
	})

	require.NoError(t, bus.Publish(ctx, event(domain.EventTypePaymentSucceeded)))
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_PublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := eventbus.New(slog.Default())
	require.NoError(t, bus.Publish(context.Background(), event(domain.EventTypePaymentRefunded)))
}

func TestBus_HandlerFailureDoesNotStopOthers(t *testing.T) {
	bus := eventbus.New(slog.Default())
	ctx := context.Background()

	var secondRan bool
	bus.Subscribe(domain.EventTypePaymentFailed, func(ctx context.Context, e domain.DomainEvent) error {
		return errors.New("boom")
	})
	bus.Subscribe(domain.EventTypePaymentFailed, func(ctx context.Context, e domain.DomainEvent) error {
		secondRan = true
		return nil
	})

	err := bus.Publish(ctx, event(domain.EventTypePaymentFailed))
	require.Error(t, err)
	assert.True(t, secondRan)
}

func TestBus_PanickingHandlerIsContained(t *testing.T) {
	bus := eventbus.New(slog.Default())
	ctx := context.Background()

	var secondRan bool
	bus.Subscribe(domain.EventTypePaymentSucceeded, func(ctx context.Context, e domain.DomainEvent) error {
		panic("handler exploded")
	})
	bus.Subscribe(domain.EventTypePaymentSucceeded, func(ctx context.Context, e domain.DomainEvent) error {
		secondRan = true
		return nil
	})

	err := bus.Publish(ctx, event(domain.EventTypePaymentSucceeded))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.True(t, secondRan)
}

func TestBus_PublishManyAggregatesFailures(t *testing.T) {
	bus := eventbus.New(slog.Default())
	ctx := context.Background()

	var delivered int
	bus.Subscribe(domain.EventTypePaymentSucceeded, func(ctx context.Context, e domain.DomainEvent) error {
		delivered++
		return nil
	})
	bus.Subscribe(domain.EventTypePaymentFailed, func(ctx context.Context, e domain.DomainEvent) error {
		return errors.New("sink down")
	})

	err := bus.PublishMany(ctx, []domain.DomainEvent{
		event(domain.EventTypePaymentSucceeded),
		event(domain.EventTypePaymentFailed),
		event(domain.EventTypePaymentSucceeded),
	})
	require.Error(t, err)
	assert.Equal(t, 2, delivered)
}
