package eventstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
)

// MemoryStore is the in-process Store used by tests and local development.
// A single mutex serializes appends, which also makes batches atomic.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[uuid.UUID][]domain.DomainEvent
	all     []domain.DomainEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[uuid.UUID][]domain.DomainEvent)}
}

func (s *MemoryStore) Append(ctx context.Context, aggregateID uuid.UUID, events []domain.DomainEvent, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.streams[aggregateID]
	if len(current) != expectedVersion {
		return fmt.Errorf("Append: expected version %d, stream at %d: %w",
			expectedVersion, len(current), domain.ErrConcurrencyConflict)
	}

	s.streams[aggregateID] = append(current, events...)
	s.all = append(s.all, events...)
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, aggregateID uuid.UUID, fromVersion int) ([]domain.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	if fromVersion >= len(stream) {
		return nil, nil
	}
	out := make([]domain.DomainEvent, len(stream)-fromVersion)
	copy(out, stream[fromVersion:])
	return out, nil
}

func (s *MemoryStore) ReadAll(ctx context.Context, fromVersion int) ([]domain.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromVersion >= len(s.all) {
		return nil, nil
	}
	out := make([]domain.DomainEvent, len(s.all)-fromVersion)
	copy(out, s.all[fromVersion:])
	return out, nil
}

func (s *MemoryStore) Version(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams[aggregateID]), nil
}
