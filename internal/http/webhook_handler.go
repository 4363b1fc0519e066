package http

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/booking-pipeline/internal/application"
	"golang.org/x/crypto/blake2b"
)

// HeaderSignature carries the hex keyed BLAKE2b-256 MAC of a webhook body.
const HeaderSignature = "X-Signature"

const maxWebhookBody = 1 << 20

// Signer computes and checks webhook signatures.
type Signer struct {
	key []byte
}

// NewSigner returns a signer for secret. BLAKE2b keys are 1 to 64 bytes.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 || len(secret) > blake2b.Size {
		return nil, fmt.Errorf("webhook secret must be 1-%d bytes, got %d", blake2b.Size, len(secret))
	}
	return &Signer{key: append([]byte(nil), secret...)}, nil
}

// Sign returns the hex signature of body.
func (s *Signer) Sign(body []byte) string {
	mac, err := blake2b.New256(s.key)
	if err != nil {
		return ""
	}
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body.
func (s *Signer) Verify(body []byte, signature string) bool {
	if s == nil {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != blake2b.Size256 {
		return false
	}
	want, err := hex.DecodeString(s.Sign(body))
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

type notificationService interface {
	ApplyNotification(ctx context.Context, n application.Notification, now time.Time) (application.Outcome, error)
}

// WebhookHandler receives payment gateway notifications.
type WebhookHandler struct {
	service   notificationService
	signer    *Signer
	responder responder
	logger    *slog.Logger
}

func NewWebhookHandler(service notificationService, signer *Signer, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, signer: signer, responder: newResponder(logger), logger: defaultLogger(logger)}
}

type notificationRequest struct {
	GatewayPaymentID string     `json:"gatewayPaymentId"`
	Status           string     `json:"status"`
	PaidAmountCents  *int64     `json:"paidAmountCents,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

type notificationResponse struct {
	TransactionID string `json:"transactionId,omitempty"`
	Status        string `json:"status,omitempty"`
	Duplicate     bool   `json:"duplicate"`
	Late          bool   `json:"late,omitempty"`
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if !h.signer.Verify(body, r.Header.Get(HeaderSignature)) {
		h.responder.writeError(ctx, w, http.StatusUnauthorized, errBadSignature)
		return
	}

	var req notificationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	outcome, err := h.service.ApplyNotification(ctx, application.Notification{
		GatewayPaymentID: req.GatewayPaymentID,
		Status:           req.Status,
		PaidAmountCents:  req.PaidAmountCents,
		PaidAt:           req.PaidAt,
	}, time.Time{})
	response := notificationResponse{
		TransactionID: outcome.Transaction.ID,
		Status:        string(outcome.Transaction.Status),
		Duplicate:     outcome.Duplicate,
	}
	switch {
	case errors.Is(err, application.ErrExpiredTransaction):
		handlerLogger(ctx, h.logger, "WebhookHandler", "Receive", "gateway_payment_id", req.GatewayPaymentID).
			WarnContext(ctx, "acknowledged payment for expired transaction")
		response.Late = true
	case err != nil:
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, response)
}
