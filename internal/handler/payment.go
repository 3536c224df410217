package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fcg-cloud/payments-service/internal/domain"
	"github.com/fcg-cloud/payments-service/internal/logging"
	"github.com/fcg-cloud/payments-service/internal/service"
)

const correlationIDHeader = "X-Correlation-ID"

type paymentService interface {
	CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (*domain.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetUserPayments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	UserID string          `json:"user_id"`
	GameID string          `json:"game_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.UserID == "" {
		errs = append(errs, FieldError{Field: "user_id", Message: "required"})
	} else if _, err := uuid.Parse(r.UserID); err != nil {
		errs = append(errs, FieldError{Field: "user_id", Message: "must be a valid uuid"})
	}

	if r.GameID == "" {
		errs = append(errs, FieldError{Field: "game_id", Message: "required"})
	} else if _, err := uuid.Parse(r.GameID); err != nil {
		errs = append(errs, FieldError{Field: "game_id", Message: "must be a valid uuid"})
	}

	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	return errs
}

type paymentDTO struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	GameID    uuid.UUID       `json:"game_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:        p.ID,
		UserID:    p.UserID,
		GameID:    p.GameID,
		Amount:    p.Amount,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
	}
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	userID, _ := uuid.Parse(req.UserID)
	gameID, _ := uuid.Parse(req.GameID)

	// The correlation id only reaches the event when the caller supplied a
	// well-formed one; generated request ids stay at the transport layer.
	var correlationID *uuid.UUID
	if raw := r.Header.Get(correlationIDHeader); raw != "" {
		if cid, err := uuid.Parse(raw); err == nil {
			correlationID = &cid
		}
	}

	p, err := h.payments.CreatePayment(r.Context(), service.CreatePaymentRequest{
		UserID:        userID,
		GameID:        gameID,
		Amount:        req.Amount,
		CorrelationID: correlationID,
	})
	if err != nil {
		log.Warn("payment creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", p.ID))
	RespondSuccess(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	payments, err := h.payments.GetUserPayments(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("user payments lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentDTO, 0, len(payments))
	for i := range payments {
		dtos = append(dtos, toPaymentDTO(&payments[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}
