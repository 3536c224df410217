package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

// txAttempts bounds retries of a transaction that lost an event version race.
const txAttempts = 3

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
}

type eventStore interface {
	Append(ctx context.Context, tx *sql.Tx, aggregateID uuid.UUID, eventType domain.EventType, payload json.RawMessage, correlationID *uuid.UUID) (*domain.Event, error)
	GetByAggregateID(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error)
}

type PaymentService struct {
	payments paymentRepo
	events   eventStore
	db       *sql.DB
}

func NewPaymentService(payments paymentRepo, events eventStore, db *sql.DB) *PaymentService {
	return &PaymentService{payments: payments, events: events, db: db}
}

type CreatePaymentRequest struct {
	UserID        uuid.UUID
	GameID        uuid.UUID
	Amount        decimal.Decimal
	CorrelationID *uuid.UUID
}

// CreatePayment persists the new aggregate and its PaymentRequested event in
// one transaction, so a payment row never exists without version 1 of its
// history.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("CreatePayment: %w", domain.ErrInvalidAmount)
	}

	p := domain.NewPayment(req.UserID, req.GameID, req.Amount)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.payments.Create(ctx, tx, p); err != nil {
			return err
		}
		_, err := s.events.Append(ctx, tx, p.ID, domain.EventTypePaymentRequested, paymentEventPayload(p, time.Now().UTC()), req.CorrelationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}
	return p, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayment: %w", err)
	}
	return p, nil
}

func (s *PaymentService) GetUserPayments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	payments, err := s.payments.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetUserPayments: %w", err)
	}
	return payments, nil
}

func (s *PaymentService) GetEvents(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error) {
	events, err := s.events.GetByAggregateID(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("GetEvents: %w", err)
	}
	return events, nil
}

// inTx runs fn in a transaction, retrying the whole transaction when an event
// append lost a version race. Any error rolls everything back, so a retry
// starts clean.
func (s *PaymentService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = runTx(ctx, s.db, fn)
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// paymentEventPayload mirrors the payment's state at the moment the event is
// emitted. The store treats it as an opaque blob.
func paymentEventPayload(p *domain.Payment, now time.Time) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"payment_id":  p.ID,
		"user_id":     p.UserID,
		"game_id":     p.GameID,
		"amount":      p.Amount,
		"status":      p.Status,
		"occurred_at": now,
	})
	return b
}
