package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

type settlementPaymentRepo interface {
	GetPending(ctx context.Context) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.PaymentStatus) error
}

type settlementEventStore interface {
	Append(ctx context.Context, tx *sql.Tx, aggregateID uuid.UUID, eventType domain.EventType, payload json.RawMessage, correlationID *uuid.UUID) (*domain.Event, error)
}

// SettlementWorker is the only component that moves payments out of requested.
// It polls for pending payments on a fixed interval and settles each one in a
// single transaction: a compare-and-swap status update plus the settlement
// event append. Another worker racing on the same payment loses the CAS and
// skips it.
type SettlementWorker struct {
	payments        settlementPaymentRepo
	events          settlementEventStore
	resolver        Resolver
	db              *sql.DB
	logger          *slog.Logger
	interval        time.Duration
	processingDelay time.Duration
}

func NewSettlementWorker(
	payments settlementPaymentRepo,
	events settlementEventStore,
	resolver Resolver,
	db *sql.DB,
	logger *slog.Logger,
	interval time.Duration,
	processingDelay time.Duration,
) *SettlementWorker {
	return &SettlementWorker{
		payments:        payments,
		events:          events,
		resolver:        resolver,
		db:              db,
		logger:          logger,
		interval:        interval,
		processingDelay: processingDelay,
	}
}

// Start blocks until ctx is cancelled. Cancellation is observed between ticks
// and during the per-payment delay; a settle transaction already in flight
// finishes rather than being left half-applied.
func (w *SettlementWorker) Start(ctx context.Context) {
	w.logger.Info("settlement worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settlement worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce processes one point-in-time snapshot of pending payments,
// sequentially and oldest first. Payments created after the snapshot wait for
// the next tick. A failure on one payment is logged and the rest of the batch
// continues.
func (w *SettlementWorker) runOnce(ctx context.Context) {
	pending, err := w.payments.GetPending(ctx)
	if err != nil {
		w.logger.Error("failed to fetch pending payments", "error", err)
		return
	}

	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := w.process(ctx, &pending[i]); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to settle payment",
				"payment_id", pending[i].ID,
				"error", err,
			)
		}
	}
}

func (w *SettlementWorker) process(ctx context.Context, p *domain.Payment) error {
	if err := w.wait(ctx); err != nil {
		return err
	}

	outcome, err := w.resolver.Resolve(ctx, p)
	if err != nil {
		return fmt.Errorf("process: resolve: %w", err)
	}

	switch outcome {
	case domain.PaymentStatusSucceeded:
		err = p.MarkSucceeded()
	case domain.PaymentStatusFailed:
		err = p.MarkFailed()
	default:
		return fmt.Errorf("process: resolver returned non-terminal status %q", outcome)
	}
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}

	for attempt := 0; attempt < txAttempts; attempt++ {
		err = w.settle(ctx, p)
		if !errors.Is(err, domain.ErrVersionConflict) {
			break
		}
	}
	if errors.Is(err, domain.ErrPaymentTerminal) {
		// Another actor won the status race; its settlement event exists.
		w.logger.Info("payment already settled elsewhere, skipping", "payment_id", p.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}

	w.logger.Info("payment settled", "payment_id", p.ID, "status", p.Status)
	return nil
}

// settle applies the outcome atomically: the CAS out of requested and the
// settlement event append commit together or not at all. The event carries no
// correlation id; the worker is not acting on behalf of a request.
// Cancellation is observed between payments and during the processing delay;
// a settle that has started runs to completion.
func (w *SettlementWorker) settle(ctx context.Context, p *domain.Payment) error {
	ctx = context.WithoutCancel(ctx)
	return runTx(ctx, w.db, func(tx *sql.Tx) error {
		if err := w.payments.UpdateStatus(ctx, tx, p.ID, domain.PaymentStatusRequested, p.Status); err != nil {
			return err
		}
		_, err := w.events.Append(ctx, tx, p.ID, settlementEventType(p.Status), paymentEventPayload(p, time.Now().UTC()), nil)
		return err
	})
}

// wait simulates gateway processing time, bailing out promptly on shutdown.
func (w *SettlementWorker) wait(ctx context.Context) error {
	if w.processingDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.processingDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func settlementEventType(status domain.PaymentStatus) domain.EventType {
	if status == domain.PaymentStatusSucceeded {
		return domain.EventTypePaymentSucceeded
	}
	return domain.EventTypePaymentFailed
}
