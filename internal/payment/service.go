// Package payment owns the payment aggregate: every status change flows
// through its transition path, which serializes writers per aggregate,
// appends the matching domain event to the aggregate's stream, and keeps
// the materialized payments row in step with what the stream implies.
package payment

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
	"github.com/commercekit/payments/internal/eventbus"
	"github.com/commercekit/payments/internal/eventstore"
	"github.com/commercekit/payments/internal/provider"
	"github.com/commercekit/payments/internal/repository"
)

const lockStripes = 64

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.PaymentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	GetByProviderPaymentID(ctx context.Context, prov domain.Provider, providerPaymentID string) (*domain.PaymentRecord, error)
	List(ctx context.Context, filter repository.ListFilter) ([]domain.PaymentRecord, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string, confirmedAt *time.Time) error
	UpdateRefund(ctx context.Context, tx *sql.Tx, id uuid.UUID, refundedAmount int64, reason *string, refundedAt time.Time) error
}

type Service struct {
	payments  paymentRepo
	store     eventstore.Store
	bus       *eventbus.Bus
	providers *provider.Registry
	db        *sql.DB

	// Striped aggregate locks: writes to the same payment are mutually
	// exclusive, writes to different payments proceed in parallel. The
	// event store's version check remains the final arbiter.
	locks [lockStripes]sync.Mutex
}

func NewService(
	payments *repository.PaymentRepository,
	store eventstore.Store,
	bus *eventbus.Bus,
	providers *provider.Registry,
	db *sql.DB,
) *Service {
	return &Service{
		payments:  payments,
		store:     store,
		bus:       bus,
		providers: providers,
		db:        db,
	}
}

func (s *Service) lock(aggregateID uuid.UUID) *sync.Mutex {
	idx := binary.BigEndian.Uint32(aggregateID[:4]) % lockStripes
	return &s.locks[idx]
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayment: %w", err)
	}
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, filter repository.ListFilter) ([]domain.PaymentRecord, error) {
	payments, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ListPayments: %w", err)
	}
	return payments, nil
}
