package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/booking-pipeline/internal/application"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/go-chi/chi/v5"
)

type walletService interface {
	Get(ctx context.Context, actor application.Actor, businessID string) (persistence.Wallet, error)
	Entries(ctx context.Context, actor application.Actor, businessID string) ([]persistence.WalletEntry, error)
	Withdraw(ctx context.Context, params application.WithdrawParams) (persistence.Wallet, error)
}

type WalletHandler struct {
	service   walletService
	responder responder
}

func NewWalletHandler(service walletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{service: service, responder: newResponder(logger)}
}

type walletDTO struct {
	BusinessID          string `json:"businessId"`
	BalanceCents        int64  `json:"balanceCents"`
	PendingBalanceCents int64  `json:"pendingBalanceCents"`
	TotalReceivedCents  int64  `json:"totalReceivedCents"`
	TotalWithdrawnCents int64  `json:"totalWithdrawnCents"`
	Active              bool   `json:"active"`
	PayoutDestination   string `json:"payoutDestination,omitempty"`
}

type walletEntryDTO struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId,omitempty"`
	Kind          string    `json:"kind"`
	AmountCents   int64     `json:"amountCents"`
	CreatedAt     time.Time `json:"createdAt"`
}

type withdrawRequest struct {
	AmountCents int64 `json:"amountCents"`
}

func toWalletDTO(w persistence.Wallet) walletDTO {
	return walletDTO{
		BusinessID:          w.BusinessID,
		BalanceCents:        w.BalanceCents,
		PendingBalanceCents: w.PendingBalanceCents,
		TotalReceivedCents:  w.TotalReceivedCents,
		TotalWithdrawnCents: w.TotalWithdrawnCents,
		Active:              w.Active,
		PayoutDestination:   w.PayoutDestination,
	}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	wallet, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "businessID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toWalletDTO(wallet))
}

func (h *WalletHandler) Entries(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	entries, err := h.service.Entries(r.Context(), actor, chi.URLParam(r, "businessID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dtos := make([]walletEntryDTO, 0, len(entries))
	for _, e := range entries {
		dto := walletEntryDTO{ID: e.ID, Kind: string(e.Kind), AmountCents: e.AmountCents, CreatedAt: e.CreatedAt}
		if e.TransactionID != nil {
			dto.TransactionID = *e.TransactionID
		}
		dtos = append(dtos, dto)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"entries": dtos})
}

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	wallet, err := h.service.Withdraw(r.Context(), application.WithdrawParams{
		Actor:       actor,
		BusinessID:  chi.URLParam(r, "businessID"),
		AmountCents: req.AmountCents,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toWalletDTO(wallet))
}
