package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/booking-pipeline/internal/application"
	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/go-chi/chi/v5"
)

type availabilityService interface {
	FreeSlots(ctx context.Context, q application.SlotQuery) ([]time.Time, error)
}

type SlotHandler struct {
	service   availabilityService
	responder responder
}

func NewSlotHandler(service availabilityService, logger *slog.Logger) *SlotHandler {
	return &SlotHandler{service: service, responder: newResponder(logger)}
}

type slotsResponse struct {
	BusinessID string      `json:"businessId"`
	ServiceID  string      `json:"serviceId"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Slots      []time.Time `json:"slots"`
}

func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	from, err := calendar.ParseDate(query.Get("from"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}
	to := from
	if raw := query.Get("to"); raw != "" {
		if to, err = calendar.ParseDate(raw); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
	}

	businessID := chi.URLParam(r, "businessID")
	serviceID := chi.URLParam(r, "serviceID")
	slots, err := h.service.FreeSlots(r.Context(), application.SlotQuery{
		BusinessID: businessID,
		ServiceID:  serviceID,
		From:       from,
		To:         to,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotsResponse{
		BusinessID: businessID,
		ServiceID:  serviceID,
		From:       from.String(),
		To:         to.String(),
		Slots:      slots,
	})
}
