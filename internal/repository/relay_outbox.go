package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fcg-cloud/payments-service/internal/domain"
)

// RelayOutboxRepository tracks which events the relay has published. Rows are
// written alongside the event in EventStore.Append and selected here by
// pending status rather than a sequence cursor, so an event whose transaction
// commits late is still picked up once it becomes visible.
type RelayOutboxRepository struct {
	db *sql.DB
}

func NewRelayOutboxRepository(db *sql.DB) *RelayOutboxRepository {
	return &RelayOutboxRepository{db: db}
}

// ListPending locks and returns the oldest unpublished events, in seq order.
// SKIP LOCKED keeps concurrent relay instances off each other's batches.
func (r *RelayOutboxRepository) ListPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.Event, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT e.event_id, e.aggregate_id, e.event_type, e.occurred_at, e.version,
			e.correlation_id, e.payload, e.seq
		FROM relay_outbox o
		JOIN events e ON e.event_id = o.event_id
		WHERE o.published_at IS NULL
		ORDER BY o.seq
		LIMIT $1
		FOR UPDATE OF o SKIP LOCKED`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPending: rows: %w", err)
	}
	return events, nil
}

func (r *RelayOutboxRepository) MarkPublished(ctx context.Context, tx *sql.Tx, eventID uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE relay_outbox SET published_at = now() WHERE event_id = $1`, eventID,
	)
	if err != nil {
		return fmt.Errorf("MarkPublished: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkPublished: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkPublished: %w", domain.ErrNotFound)
	}
	return nil
}
