package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/booking-pipeline/internal/application"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/go-chi/chi/v5"
)

type transactionService interface {
	Get(ctx context.Context, actor application.Actor, id string, now time.Time) (persistence.Transaction, error)
	Cancel(ctx context.Context, actor application.Actor, id string, now time.Time) (application.Outcome, error)
	Refund(ctx context.Context, actor application.Actor, id string, now time.Time) (application.Outcome, error)
	CompleteRefund(ctx context.Context, actor application.Actor, id string, now time.Time) (application.Outcome, error)
}

type TransactionHandler struct {
	service   transactionService
	responder responder
}

func NewTransactionHandler(service transactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{service: service, responder: newResponder(logger)}
}

type transactionDTO struct {
	ID              string     `json:"id"`
	BusinessID      string     `json:"businessId"`
	AppointmentID   string     `json:"appointmentId"`
	AmountCents     int64      `json:"amountCents"`
	Currency        string     `json:"currency"`
	CommissionCents int64      `json:"commissionCents"`
	NetCents        int64      `json:"netCents"`
	Status          string     `json:"status"`
	GatewayRef      string     `json:"gatewayRef,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	ReleasedAt      *time.Time `json:"releasedAt,omitempty"`
}

func toTransactionDTO(t persistence.Transaction) transactionDTO {
	dto := transactionDTO{
		ID:              t.ID,
		BusinessID:      t.BusinessID,
		AppointmentID:   t.AppointmentID,
		AmountCents:     t.AmountCents,
		Currency:        t.Currency,
		CommissionCents: t.CommissionCents,
		NetCents:        t.NetCents,
		Status:          string(t.Status),
		ExpiresAt:       t.ExpiresAt,
		PaidAt:          t.PaidAt,
		ReleasedAt:      t.ReleasedAt,
	}
	if t.GatewayRef != nil {
		dto.GatewayRef = *t.GatewayRef
	}
	return dto
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	txn, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "transactionID"), time.Time{})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toTransactionDTO(txn))
}

func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.Cancel)
}

func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.Refund)
}

func (h *TransactionHandler) CompleteRefund(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.CompleteRefund)
}

func (h *TransactionHandler) command(w http.ResponseWriter, r *http.Request, apply func(context.Context, application.Actor, string, time.Time) (application.Outcome, error)) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	outcome, err := apply(r.Context(), actor, chi.URLParam(r, "transactionID"), time.Time{})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toTransactionDTO(outcome.Transaction))
}
