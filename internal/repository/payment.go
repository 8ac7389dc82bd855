package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/payments/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

const paymentColumns = `id, order_id, user_id, amount, currency, provider,
	provider_payment_id, status, payment_method_id, failure_reason,
	refunded_amount, refund_reason, metadata, confirmed_at, refunded_at,
	created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.PaymentRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, order_id, user_id, amount, currency, provider,
			provider_payment_id, status, payment_method_id, failure_reason,
			refunded_amount, refund_reason, metadata, confirmed_at, refunded_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17
		)`,
		p.ID, p.OrderID, p.UserID, p.Amount, p.Currency, p.Provider,
		p.ProviderPaymentID, p.Status, p.PaymentMethodID, p.FailureReason,
		p.RefundedAmount, p.RefundReason, nullableJSON(p.Metadata), p.ConfirmedAt, p.RefundedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, provider domain.Provider, providerPaymentID string) (*domain.PaymentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE provider = $1 AND provider_payment_id = $2`,
		provider, providerPaymentID,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderPaymentID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProviderPaymentID: %w", err)
	}
	return p, nil
}

type ListFilter struct {
	OrderID *uuid.UUID
	UserID  *uuid.UUID
	Status  *domain.PaymentStatus
}

func (r *PaymentRepository) List(ctx context.Context, filter ListFilter) ([]domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	var args []any

	if filter.OrderID != nil {
		args = append(args, *filter.OrderID)
		query += fmt.Sprintf(" AND order_id = $%d", len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var payments []domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string, confirmedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, failure_reason = $2,
			confirmed_at = COALESCE($3, confirmed_at), updated_at = now()
		WHERE id = $4`,
		status, failureReason, confirmedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return requireRow(res, "UpdateStatus")
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, tx *sql.Tx, id uuid.UUID, refundedAmount int64, reason *string, refundedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, refunded_amount = $2, refund_reason = $3,
			refunded_at = $4, updated_at = now()
		WHERE id = $5`,
		domain.PaymentStatusRefunded, refundedAmount, reason, refundedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateRefund: %w", err)
	}
	return requireRow(res, "UpdateRefund")
}

func requireRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func scanPayment(s scanner) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	var paymentMethodID sql.NullString
	var metadata []byte

	err := s.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Currency, &p.Provider,
		&p.ProviderPaymentID, &p.Status, &paymentMethodID, &p.FailureReason,
		&p.RefundedAmount, &p.RefundReason, &metadata, &p.ConfirmedAt, &p.RefundedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentMethodID.Valid {
		p.PaymentMethodID = &paymentMethodID.String
	}
	if metadata != nil {
		p.Metadata = metadata
	}
	return &p, nil
}
