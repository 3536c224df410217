package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusRequested PaymentStatus = "requested"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is the current-state projection of a payment aggregate. Status is a
// summary of the aggregate's latest event and is only moved through
// MarkSucceeded/MarkFailed.
type Payment struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	GameID    uuid.UUID
	Amount    decimal.Decimal
	Status    PaymentStatus
	CreatedAt time.Time
}

func NewPayment(userID, gameID uuid.UUID, amount decimal.Decimal) *Payment {
	return &Payment{
		ID:        uuid.New(),
		UserID:    userID,
		GameID:    gameID,
		Amount:    amount,
		Status:    PaymentStatusRequested,
		CreatedAt: time.Now().UTC(),
	}
}

func (p *Payment) MarkSucceeded() error {
	if p.Terminal() {
		return ErrPaymentTerminal
	}
	p.Status = PaymentStatusSucceeded
	return nil
}

func (p *Payment) MarkFailed() error {
	if p.Terminal() {
		return ErrPaymentTerminal
	}
	p.Status = PaymentStatusFailed
	return nil
}

// Terminal reports whether the payment has left the requested state. There is
// no transition out of a terminal status; a retried payment is a new aggregate.
func (p *Payment) Terminal() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed
}
