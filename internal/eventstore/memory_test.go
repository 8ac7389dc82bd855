package eventstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/eventstore"
)

func makeEvent(aggregateID uuid.UUID, eventType string) domain.DomainEvent {
	return domain.DomainEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: domain.AggregateTypePayment,
		Payload:       []byte(`{}`),
		OccurredAt:    time.Now().UTC(),
		Version:       1,
	}
}

func TestMemoryStore_AppendAndRead(t *testing.T) {
	store := eventstore.NewMemoryStore()
	ctx := context.Background()
	aggregateID := uuid.New()

	err := store.Append(ctx, aggregateID, []domain.DomainEvent{
		makeEvent(aggregateID, domain.EventTypePaymentProcessing),
	}, 0)
	require.NoError(t, err)

	err = store.Append(ctx, aggregateID, []domain.DomainEvent{
		makeEvent(aggregateID, domain.EventTypePaymentSucceeded),
	}, 1)
	require.NoError(t, err)

	events, err := store.Read(ctx, aggregateID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypePaymentProcessing, events[0].Type)
	assert.Equal(t, domain.EventTypePaymentSucceeded, events[1].Type)

	tail, err := store.Read(ctx, aggregateID, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, domain.EventTypePaymentSucceeded, tail[0].Type)

	version, err := store.Version(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	store := eventstore.NewMemoryStore()
	ctx := context.Background()
	aggregateID := uuid.New()

	require.NoError(t, store.Append(ctx, aggregateID, []domain.DomainEvent{
		makeEvent(aggregateID, domain.EventTypePaymentProcessing),
	}, 0))

	err := store.Append(ctx, aggregateID, []domain.DomainEvent{
		makeEvent(aggregateID, domain.EventTypePaymentSucceeded),
	}, 0)
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// The losing append must leave the stream untouched.
	version, err := store.Version(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMemoryStore_ConcurrentAppendOneWinner(t *testing.T) {
	store := eventstore.NewMemoryStore()
	ctx := context.Background()
	aggregateID := uuid.New()

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = store.Append(ctx, aggregateID, []domain.DomainEvent{
				makeEvent(aggregateID, domain.EventTypePaymentSucceeded),
			}, 0)
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		}
	}
	assert.Equal(t, 1, winners)

	version, err := store.Version(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMemoryStore_StreamsAreIsolated(t *testing.T) {
	store := eventstore.NewMemoryStore()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, store.Append(ctx, a, []domain.DomainEvent{makeEvent(a, domain.EventTypePaymentProcessing)}, 0))
	require.NoError(t, store.Append(ctx, b, []domain.DomainEvent{makeEvent(b, domain.EventTypePaymentFailed)}, 0))

	events, err := store.Read(ctx, a, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, a, events[0].AggregateID)

	all, err := store.ReadAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_EmptyAppendIsNoop(t *testing.T) {
	store := eventstore.NewMemoryStore()
	ctx := context.Background()
	aggregateID := uuid.New()

	require.NoError(t, store.Append(ctx, aggregateID, nil, 5))

	version, err := store.Version(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}
