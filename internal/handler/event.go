package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fcg-cloud/payments-service/internal/domain"
	"github.com/fcg-cloud/payments-service/internal/logging"
)

type eventReader interface {
	GetEvents(ctx context.Context, aggregateID uuid.UUID) ([]domain.Event, error)
}

type EventHandler struct {
	events eventReader
}

func NewEventHandler(events eventReader) *EventHandler {
	return &EventHandler{events: events}
}

type eventDTO struct {
	EventID       uuid.UUID  `json:"event_id"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	EventType     string     `json:"event_type"`
	OccurredAt    time.Time  `json:"occurred_at"`
	Version       int64      `json:"version"`
	CorrelationID *uuid.UUID `json:"correlation_id"`
	Payload       any        `json:"payload"`
}

// GetByAggregate returns the aggregate's full history oldest first. An unknown
// aggregate is an empty list, not a 404.
func (h *EventHandler) GetByAggregate(w http.ResponseWriter, r *http.Request) {
	aggregateID, err := uuid.Parse(r.PathValue("aggregateId"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	events, err := h.events.GetEvents(r.Context(), aggregateID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("event history lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]eventDTO, 0, len(events))
	for i := range events {
		e := &events[i]
		dto := eventDTO{
			EventID:       e.EventID,
			AggregateID:   e.AggregateID,
			EventType:     string(e.EventType),
			OccurredAt:    e.OccurredAt,
			Version:       e.Version,
			CorrelationID: e.CorrelationID,
		}
		if len(e.Payload) > 0 {
			dto.Payload = json.RawMessage(e.Payload)
		}
		dtos = append(dtos, dto)
	}
	RespondSuccess(w, http.StatusOK, dtos)
}
