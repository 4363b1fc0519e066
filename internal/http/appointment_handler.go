package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/booking-pipeline/internal/application"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/go-chi/chi/v5"
)

type appointmentService interface {
	Create(ctx context.Context, params application.CreateAppointmentParams) (application.Booking, error)
	Reschedule(ctx context.Context, params application.RescheduleAppointmentParams) (persistence.Appointment, error)
	Cancel(ctx context.Context, params application.CancelAppointmentParams) (persistence.Appointment, error)
	Start(ctx context.Context, params application.AppointmentTransitionParams) (persistence.Appointment, error)
	Complete(ctx context.Context, params application.AppointmentTransitionParams) (persistence.Appointment, error)
}

type AppointmentHandler struct {
	service   appointmentService
	responder responder
}

func NewAppointmentHandler(service appointmentService, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{service: service, responder: newResponder(logger)}
}

type createAppointmentRequest struct {
	BusinessID  string    `json:"businessId"`
	ServiceID   string    `json:"serviceId"`
	CustomerID  string    `json:"customerId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

type appointmentDTO struct {
	ID                 string    `json:"id"`
	BusinessID         string    `json:"businessId"`
	ServiceID          string    `json:"serviceId"`
	CustomerID         string    `json:"customerId"`
	ScheduledAt        time.Time `json:"scheduledAt"`
	DurationMinutes    int       `json:"durationMinutes"`
	PriceCents         int64     `json:"priceCents"`
	DiscountCents      int64     `json:"discountCents"`
	Status             string    `json:"status"`
	FeeAmountCents     int64     `json:"feeAmountCents"`
	FeeStatus          string    `json:"feeStatus"`
	TransactionID      string    `json:"transactionId,omitempty"`
	CancellationReason string    `json:"cancellationReason,omitempty"`
}

type bookingResponse struct {
	Appointment appointmentDTO  `json:"appointment"`
	Transaction *transactionDTO `json:"transaction,omitempty"`
}

func toAppointmentDTO(a persistence.Appointment) appointmentDTO {
	dto := appointmentDTO{
		ID:              a.ID,
		BusinessID:      a.BusinessID,
		ServiceID:       a.ServiceID,
		CustomerID:      a.CustomerID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		PriceCents:      a.PriceCents,
		DiscountCents:   a.DiscountCents,
		Status:          string(a.Status),
		FeeAmountCents:  a.FeeAmountCents,
		FeeStatus:       string(a.FeeStatus),
	}
	if a.TransactionID != nil {
		dto.TransactionID = *a.TransactionID
	}
	if a.CancellationReason != nil {
		dto.CancellationReason = *a.CancellationReason
	}
	return dto
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	if req.CustomerID == "" && actor.Role == application.RoleCustomer {
		req.CustomerID = actor.ID
	}

	booking, err := h.service.Create(r.Context(), application.CreateAppointmentParams{
		Actor:       actor,
		BusinessID:  req.BusinessID,
		ServiceID:   req.ServiceID,
		CustomerID:  req.CustomerID,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := bookingResponse{Appointment: toAppointmentDTO(booking.Appointment)}
	if booking.Transaction != nil {
		dto := toTransactionDTO(*booking.Transaction)
		response.Transaction = &dto
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, response)
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	appt, err := h.service.Reschedule(r.Context(), application.RescheduleAppointmentParams{
		Actor:          actor,
		AppointmentID:  chi.URLParam(r, "appointmentID"),
		NewScheduledAt: req.ScheduledAt,
	})
	h.render(r.Context(), w, appt, err)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	appt, err := h.service.Cancel(r.Context(), application.CancelAppointmentParams{
		Actor:         actor,
		AppointmentID: chi.URLParam(r, "appointmentID"),
		Reason:        req.Reason,
		Force:         req.Force,
	})
	h.render(r.Context(), w, appt, err)
}

func (h *AppointmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	appt, err := h.service.Start(r.Context(), application.AppointmentTransitionParams{
		Actor:         actor,
		AppointmentID: chi.URLParam(r, "appointmentID"),
	})
	h.render(r.Context(), w, appt, err)
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	appt, err := h.service.Complete(r.Context(), application.AppointmentTransitionParams{
		Actor:         actor,
		AppointmentID: chi.URLParam(r, "appointmentID"),
	})
	h.render(r.Context(), w, appt, err)
}

func (h *AppointmentHandler) render(ctx context.Context, w http.ResponseWriter, appt persistence.Appointment, err error) {
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toAppointmentDTO(appt))
}
