package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingGate struct {
	calls   int
	allowed bool
	err     error
}

func (g *countingGate) CanUseBookingFee(context.Context, string) (bool, error) {
	g.calls++
	return g.allowed, g.err
}

func TestCachedFeatureGateServesFromCache(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	inner := &countingGate{allowed: true}
	gate := NewCachedFeatureGate(inner, time.Minute, 4, func() time.Time { return current })
	ctx := context.Background()

	for range 3 {
		allowed, err := gate.CanUseBookingFee(ctx, "business-1")
		if err != nil || !allowed {
			t.Fatalf("CanUseBookingFee = %v, %v", allowed, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", inner.calls)
	}

	current = current.Add(2 * time.Minute)
	if _, err := gate.CanUseBookingFee(ctx, "business-1"); err != nil {
		t.Fatalf("CanUseBookingFee after expiry: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected expired entry to be refreshed, calls = %d", inner.calls)
	}

	gate.Invalidate()
	if _, err := gate.CanUseBookingFee(ctx, "business-1"); err != nil {
		t.Fatalf("CanUseBookingFee after invalidate: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected invalidation to force a lookup, calls = %d", inner.calls)
	}
}

func TestCachedFeatureGateDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	inner := &countingGate{err: errors.New("plan service down")}
	gate := NewCachedFeatureGate(inner, time.Minute, 4, nil)
	ctx := context.Background()

	for range 2 {
		if _, err := gate.CanUseBookingFee(ctx, "business-1"); err == nil {
			t.Fatal("expected error from upstream gate")
		}
	}
	if inner.calls != 2 {
		t.Fatalf("expected errors to bypass the cache, calls = %d", inner.calls)
	}
}

func TestAllowlistFeatureGate(t *testing.T) {
	t.Parallel()

	gate := NewAllowlistFeatureGate([]string{" business-1 ", ""})
	ctx := context.Background()
	if ok, _ := gate.CanUseBookingFee(ctx, "business-1"); !ok {
		t.Fatal("expected listed business to be allowed")
	}
	if ok, _ := gate.CanUseBookingFee(ctx, "business-2"); ok {
		t.Fatal("expected unlisted business to be denied")
	}
	if ok, _ := (AllowAllFeatures{}).CanUseBookingFee(ctx, "anything"); !ok {
		t.Fatal("expected AllowAllFeatures to allow")
	}
}
