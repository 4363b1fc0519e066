package application

import (
	"context"
	"strings"
)

// FeatureGate answers plan capability questions for a business.
type FeatureGate interface {
	CanUseBookingFee(ctx context.Context, businessID string) (bool, error)
}

// AllowAllFeatures grants every capability.
type AllowAllFeatures struct{}

// CanUseBookingFee always reports true.
func (AllowAllFeatures) CanUseBookingFee(context.Context, string) (bool, error) {
	return true, nil
}

// AllowlistFeatureGate grants booking fees to listed businesses only.
type AllowlistFeatureGate struct {
	businesses map[string]struct{}
}

// NewAllowlistFeatureGate builds a gate from business IDs. Blank IDs are ignored.
func NewAllowlistFeatureGate(businessIDs []string) *AllowlistFeatureGate {
	gate := &AllowlistFeatureGate{businesses: make(map[string]struct{}, len(businessIDs))}
	for _, id := range businessIDs {
		if id = strings.TrimSpace(id); id != "" {
			gate.businesses[id] = struct{}{}
		}
	}
	return gate
}

// CanUseBookingFee reports whether businessID is on the allowlist.
func (g *AllowlistFeatureGate) CanUseBookingFee(_ context.Context, businessID string) (bool, error) {
	if g == nil {
		return false, nil
	}
	_, ok := g.businesses[businessID]
	return ok, nil
}

// ChargeRequest asks the payment gateway to open an instant-payment charge.
type ChargeRequest struct {
	TransactionID string
	BusinessID    string
	AmountCents   int64
	Currency      string
	Description   string
}

// ChargeResult identifies the charge at the gateway. Reference is the id the
// gateway will quote in its notifications.
type ChargeResult struct {
	Reference string
	Status    string
}

// PaymentGateway opens charges at the external payment provider.
type PaymentGateway interface {
	OpenCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// NoopGateway is used when no provider is configured. Its references are the
// transaction IDs themselves, so notifications quote the transaction ID.
type NoopGateway struct{}

// OpenCharge returns the transaction ID as the gateway reference.
func (NoopGateway) OpenCharge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	return ChargeResult{Reference: req.TransactionID, Status: "pending"}, nil
}
