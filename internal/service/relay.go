package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

type relayOutbox interface {
	ListPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.Event, error)
	MarkPublished(ctx context.Context, tx *sql.Tx, eventID uuid.UUID) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// EventRelay ships stored events to the message broker. Each event's outbox
// row commits in the same transaction as the event itself, and the relay
// selects unpublished rows under row locks, so an event whose writing
// transaction commits late is relayed once it becomes visible rather than
// skipped. Delivery is at-least-once; consumers deduplicate on event_id.
type EventRelay struct {
	outbox    relayOutbox
	publisher Publisher
	db        *sql.DB
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewEventRelay(
	outbox relayOutbox,
	publisher Publisher,
	db *sql.DB,
	logger *slog.Logger,
	interval time.Duration,
	batchSize int,
) *EventRelay {
	return &EventRelay{
		outbox:    outbox,
		publisher: publisher,
		db:        db,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *EventRelay) Start(ctx context.Context) {
	r.logger.Info("event relay started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event relay stopped")
			return
		case <-ticker.C:
			if err := r.relayOnce(ctx); err != nil {
				r.logger.Error("event relay pass failed", "error", err)
			}
		}
	}
}

type relayEnvelope struct {
	EventID       string          `json:"event_id"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Version       int64           `json:"version"`
	CorrelationID *string         `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// relayOnce publishes one batch of pending events, oldest seq first. The rows
// stay locked for the duration of the pass and are marked published in the
// same transaction; a publish failure rolls the whole batch back, so the next
// pass redelivers it from the start, in order.
func (r *EventRelay) relayOnce(ctx context.Context) error {
	err := runTx(ctx, r.db, func(tx *sql.Tx) error {
		events, err := r.outbox.ListPending(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}

		for i := range events {
			e := &events[i]
			body, err := json.Marshal(envelopeFor(e))
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", e.EventID, err)
			}
			if err := r.publisher.Publish(ctx, string(e.EventType), body); err != nil {
				return fmt.Errorf("publish event %s: %w", e.EventID, err)
			}
			if err := r.outbox.MarkPublished(ctx, tx, e.EventID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("relayOnce: %w", err)
	}
	return nil
}

func envelopeFor(e *domain.Event) relayEnvelope {
	env := relayEnvelope{
		EventID:     e.EventID.String(),
		AggregateID: e.AggregateID.String(),
		EventType:   string(e.EventType),
		OccurredAt:  e.OccurredAt,
		Version:     e.Version,
		Payload:     e.Payload,
	}
	if e.CorrelationID != nil {
		id := e.CorrelationID.String()
		env.CorrelationID = &id
	}
	return env
}
