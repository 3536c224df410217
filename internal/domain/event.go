package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

// The set of event types is open: readers must tolerate types they do not
// recognize.
const (
	EventTypePaymentRequested EventType = "PaymentRequested"
	EventTypePaymentSucceeded EventType = "PaymentSucceeded"
	EventTypePaymentFailed    EventType = "PaymentFailed"
)

// Event is an immutable fact appended to a payment aggregate's history.
// EventID, OccurredAt and Version are assigned by the store at append time.
// Version is strictly increasing per aggregate, starting at 1, with no gaps.
type Event struct {
	EventID       uuid.UUID
	AggregateID   uuid.UUID
	EventType     EventType
	OccurredAt    time.Time
	Version       int64
	CorrelationID *uuid.UUID
	Payload       json.RawMessage

	// Seq is a global insertion cursor used by the event relay. It carries no
	// ordering guarantee across aggregates.
	Seq int64
}
