// Package omise opens PromptPay booking-fee charges through the Omise API.
package omise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/booking-pipeline/internal/application"
	omisego "github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// SourceType is the Omise instant-payment source used for booking fees.
const SourceType = "promptpay"

// api is the part of the Omise client the gateway calls.
type api interface {
	CreateSource(ctx context.Context, op *operations.CreateSource) (*omisego.Source, error)
	CreateCharge(ctx context.Context, op *operations.CreateCharge) (*omisego.Charge, error)
	RetrieveCharge(ctx context.Context, id string) (*omisego.Charge, error)
}

// Gateway implements application.PaymentGateway on Omise.
type Gateway struct {
	api    api
	logger *slog.Logger
}

var _ application.PaymentGateway = (*Gateway)(nil)

// New builds a Gateway from Omise keys.
func New(publicKey, secretKey string, logger *slog.Logger) (*Gateway, error) {
	if strings.TrimSpace(publicKey) == "" || strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("omise public and secret keys are required")
	}
	client, err := omisego.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	return newGateway(&clientAPI{client: client}, logger), nil
}

func newGateway(api api, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{api: api, logger: logger.With("component", "OmiseGateway")}
}

// OpenCharge creates a PromptPay source and a charge against it. The charge
// ID is the reference Omise quotes in its webhooks.
func (g *Gateway) OpenCharge(ctx context.Context, req application.ChargeRequest) (application.ChargeResult, error) {
	if g == nil || g.api == nil {
		return application.ChargeResult{}, errors.New("omise gateway is not configured")
	}
	if req.AmountCents <= 0 || strings.TrimSpace(req.Currency) == "" {
		return application.ChargeResult{}, fmt.Errorf("invalid charge request for transaction %s", req.TransactionID)
	}
	currency := strings.ToLower(req.Currency)

	source, err := g.api.CreateSource(ctx, &operations.CreateSource{
		Type:     SourceType,
		Amount:   req.AmountCents,
		Currency: currency,
	})
	if err != nil {
		return application.ChargeResult{}, fmt.Errorf("create omise source: %w", err)
	}

	charge, err := g.api.CreateCharge(ctx, &operations.CreateCharge{
		Amount:      req.AmountCents,
		Currency:    currency,
		Source:      source.ID,
		Description: req.Description,
		Metadata: map[string]interface{}{
			"transaction_id": req.TransactionID,
			"business_id":    req.BusinessID,
		},
	})
	if err != nil {
		return application.ChargeResult{}, fmt.Errorf("create omise charge: %w", err)
	}

	g.logger.InfoContext(ctx, "omise charge opened",
		"transaction_id", req.TransactionID,
		"charge_id", charge.ID,
		"status", string(charge.Status),
	)
	return application.ChargeResult{Reference: charge.ID, Status: string(charge.Status)}, nil
}

// ChargeStatus returns the current Omise status of a charge, suitable for
// application.Notification.Status when reconciling a missed webhook.
func (g *Gateway) ChargeStatus(ctx context.Context, chargeID string) (status string, paidAmountCents int64, err error) {
	if g == nil || g.api == nil {
		return "", 0, errors.New("omise gateway is not configured")
	}
	charge, err := g.api.RetrieveCharge(ctx, chargeID)
	if err != nil {
		return "", 0, fmt.Errorf("retrieve omise charge %s: %w", chargeID, err)
	}
	return string(charge.Status), charge.Amount, nil
}

// clientAPI adapts *omisego.Client, which has no context support, to api.
type clientAPI struct {
	client *omisego.Client
}

func (c *clientAPI) CreateSource(ctx context.Context, op *operations.CreateSource) (*omisego.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source := &omisego.Source{}
	if err := c.client.Do(source, op); err != nil {
		return nil, err
	}
	return source, nil
}

func (c *clientAPI) CreateCharge(ctx context.Context, op *operations.CreateCharge) (*omisego.Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	charge := &omisego.Charge{}
	if err := c.client.Do(charge, op); err != nil {
		return nil, err
	}
	return charge, nil
}

func (c *clientAPI) RetrieveCharge(ctx context.Context, id string) (*omisego.Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	charge := &omisego.Charge{}
	if err := c.client.Do(charge, &operations.RetrieveCharge{ChargeID: id}); err != nil {
		return nil, err
	}
	return charge, nil
}
