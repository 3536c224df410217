package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicatePayment = errors.New("duplicate payment")
	ErrPaymentTerminal  = errors.New("payment already in terminal state")
	ErrVersionConflict  = errors.New("event version conflict")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrInvalidRequest   = errors.New("invalid request")
)
