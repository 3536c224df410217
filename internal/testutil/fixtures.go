package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

// SeedPayment inserts a payment row directly, bypassing the service layer, so
// tests can stage arbitrary statuses and creation times.
func SeedPayment(t *testing.T, db *sql.DB, status domain.PaymentStatus, createdAt time.Time) *domain.Payment {
	t.Helper()

	p := &domain.Payment{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		GameID:    uuid.New(),
		Amount:    decimal.NewFromFloat(10.00),
		Status:    status,
		CreatedAt: createdAt,
	}

	_, err := db.Exec(
		`INSERT INTO payments (id, user_id, game_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.UserID, p.GameID, p.Amount, p.Status, p.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func GetPaymentStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.PaymentStatus {
	t.Helper()

	var status domain.PaymentStatus
	if err := db.QueryRow(`SELECT status FROM payments WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get payment status %s: %v", id, err)
	}
	return status
}

func CountEvents(t *testing.T, db *sql.DB, aggregateID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE aggregate_id = $1`, aggregateID).Scan(&count)
	if err != nil {
		t.Fatalf("count events for aggregate %s: %v", aggregateID, err)
	}
	return count
}

func CountPayments(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM payments`).Scan(&count); err != nil {
		t.Fatalf("count payments: %v", err)
	}
	return count
}
