package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

const paymentColumns = `id, user_id, game_id, amount, status, created_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, game_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		payment.ID, payment.UserID, payment.GameID, payment.Amount,
		payment.Status, payment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicatePayment)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
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

// GetPending returns every payment still in requested status, oldest first, so
// no payment is starved behind newer arrivals.
func (r *PaymentRepository) GetPending(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE status = $1 ORDER BY created_at`,
		domain.PaymentStatusRequested,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows, "GetPending")
}

func (r *PaymentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByUserID: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows, "GetByUserID")
}

// UpdateStatus is a compare-and-swap on status: the row is only touched while
// it still holds the expected status. Zero rows affected means either the
// payment is gone (ErrNotFound) or another actor already transitioned it
// (ErrPaymentTerminal); the settlement worker treats the latter as a benign
// no-op.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.PaymentStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("UpdateStatus: exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("UpdateStatus: %w", domain.ErrPaymentTerminal)
	}
	return nil
}

func collectPayments(rows *sql.Rows, op string) ([]domain.Payment, error) {
	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return payments, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	err := s.Scan(&p.ID, &p.UserID, &p.GameID, &p.Amount, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
