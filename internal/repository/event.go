package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

const eventColumns = `event_id, aggregate_id, event_type, occurred_at, version,
	correlation_id, payload, seq`

// EventStore is the append-only log of payment aggregate events. Versions are
// assigned here and nowhere else.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Append writes the next event for an aggregate inside the caller's
// transaction, so a payment write and its event land atomically. The next
// version is 1 + MAX(version) for the aggregate; a concurrent append to the
// same aggregate trips the (aggregate_id, version) unique constraint and is
// returned as domain.ErrVersionConflict, which aborts the transaction. The
// caller retries the whole transaction. Appends to different aggregates never
// contend.
func (s *EventStore) Append(ctx context.Context, tx *sql.Tx, aggregateID uuid.UUID, eventType domain.EventType, payload json.RawMessage, correlationID *uuid.UUID) (*domain.Event, error) {
	var last sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM events WHERE aggregate_id = $1`, aggregateID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("Append: last version: %w", err)
	}

	e := &domain.Event{
		EventID:       uuid.New(),
		AggregateID:   aggregateID,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		Version:       last.Int64 + 1,
		CorrelationID: correlationID,
		Payload:       payload,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (event_id, aggregate_id, event_type, occurred_at, version, correlation_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		e.EventID, e.AggregateID, e.EventType, e.OccurredAt, e.Version, e.CorrelationID, e.Payload,
	).Scan(&e.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("Append: %w", domain.ErrVersionConflict)
		}
		return nil, fmt.Errorf("Append: %w", err)
	}

	// The outbox row commits with the event, so the relay sees every event
	// exactly when it becomes visible, regardless of commit order.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO relay_outbox (event_id, seq) VALUES ($1, $2)`,
		e.EventID, e.Seq,
	)
	if err != nil {
		return nil, fmt.Errorf("Append: outbox: %w", err)
	}
	return e, nil
}

// GetByAggregateID returns the aggregate's complete history in version order.
// An unknown aggregate yields an empty slice, not an error.
func (s *EventStore) GetByAggregateID(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE aggregate_id = $1 ORDER BY version`, aggregateID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByAggregateID: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByAggregateID: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByAggregateID: rows: %w", err)
	}
	return events, nil
}

func scanEvent(s scanner) (*domain.Event, error) {
	var e domain.Event
	var correlationID uuid.NullUUID
	var payload *[]byte

	err := s.Scan(
		&e.EventID, &e.AggregateID, &e.EventType, &e.OccurredAt, &e.Version,
		&correlationID, &payload, &e.Seq,
	)
	if err != nil {
		return nil, err
	}

	if correlationID.Valid {
		e.CorrelationID = &correlationID.UUID
	}
	if payload != nil {
		e.Payload = *payload
	}
	return &e, nil
}
