package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/booking-pipeline/internal/availability"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/testfixtures"
)

// opening is 08:00 UTC on a Monday; the fixture calendar opens at 09:00.
var opening = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.March, 4, hour, minute, 0, 0, time.UTC)
}

type pipeline struct {
	harness      *testfixtures.SQLiteHarness
	store        persistence.Store
	clock        *testfixtures.Clock
	ids          *testfixtures.IDGenerator
	business     persistence.Business
	service      persistence.Service
	operator     Actor
	customer     Actor
	appointments *AppointmentService
	transactions *TransactionService
	wallets      *WalletService
	availability *AvailabilityService
}

type pipelineOptions struct {
	features FeatureGate
	gateway  PaymentGateway
	noWallet bool
	service  []testfixtures.ServiceOption
	calendar []testfixtures.CalendarOption
}

func newPipeline(t *testing.T, business persistence.Business, opts pipelineOptions) *pipeline {
	t.Helper()

	harness := testfixtures.NewSQLiteHarness(t)
	service := testfixtures.NewService(business.ID, opts.service...)
	cal := testfixtures.NewCalendar(business.ID, opts.calendar...)
	if opts.noWallet {
		ctx := context.Background()
		if err := harness.Store.SaveBusiness(ctx, business); err != nil {
			t.Fatalf("seed business: %v", err)
		}
		if err := harness.Store.SaveCalendar(ctx, cal); err != nil {
			t.Fatalf("seed calendar: %v", err)
		}
		if err := harness.Store.SaveService(ctx, service); err != nil {
			t.Fatalf("seed service: %v", err)
		}
	} else {
		harness.Seed(t, business, cal, service)
	}

	clock := testfixtures.NewClock(opening)
	ids := testfixtures.NewIDGenerator("id")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := availability.NewEngine(0)

	transactions := NewTransactionServiceWithLogger(harness.Store, ids.NextFunc(), clock.NowFunc(), logger)
	p := &pipeline{
		harness:      harness,
		store:        harness.Store,
		clock:        clock,
		ids:          ids,
		business:     business,
		service:      service,
		operator:     Actor{ID: "operator-1", Role: RoleOperator, BusinessID: business.ID},
		customer:     Actor{ID: "customer-1", Role: RoleCustomer},
		transactions: transactions,
		wallets:      NewWalletServiceWithLogger(harness.Store, ids.NextFunc(), clock.NowFunc(), logger),
		availability: NewAvailabilityServiceWithLogger(harness.Store, harness.Store, engine, clock.NowFunc(), logger),
	}
	p.appointments = NewAppointmentService(AppointmentServiceDeps{
		Store:        harness.Store,
		Engine:       engine,
		Features:     opts.features,
		Gateway:      opts.gateway,
		Transactions: transactions,
		FeeTTL:       15 * time.Minute,
		IDGenerator:  ids.NextFunc(),
		Now:          clock.NowFunc(),
		Logger:       logger,
	})
	return p
}

func (p *pipeline) book(t *testing.T, scheduledAt time.Time) Booking {
	t.Helper()
	booking, err := p.appointments.Create(context.Background(), CreateAppointmentParams{
		Actor:       p.customer,
		BusinessID:  p.business.ID,
		ServiceID:   p.service.ID,
		CustomerID:  p.customer.ID,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		t.Fatalf("book %s: %v", scheduledAt.Format(time.Kitchen), err)
	}
	return booking
}

func (p *pipeline) notify(t *testing.T, ref, status string, paid int64) (Outcome, error) {
	t.Helper()
	n := Notification{GatewayPaymentID: ref, Status: status}
	if paid > 0 {
		n.PaidAmountCents = &paid
	}
	return p.transactions.ApplyNotification(context.Background(), n, time.Time{})
}

func (p *pipeline) appointment(t *testing.T, id string) persistence.Appointment {
	t.Helper()
	appt, err := p.store.GetAppointment(context.Background(), id)
	if err != nil {
		t.Fatalf("load appointment %s: %v", id, err)
	}
	return appt
}

func (p *pipeline) transaction(t *testing.T, id string) persistence.Transaction {
	t.Helper()
	txn, err := p.store.GetTransaction(context.Background(), id)
	if err != nil {
		t.Fatalf("load transaction %s: %v", id, err)
	}
	return txn
}

func (p *pipeline) wallet(t *testing.T) persistence.Wallet {
	t.Helper()
	w, err := p.store.GetWallet(context.Background(), p.business.ID)
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	return w
}

func (p *pipeline) eventNames(t *testing.T) []string {
	t.Helper()
	events, err := p.store.ListUnpublished(context.Background(), 1000)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	return names
}

func countEvents(names []string, name string) int {
	n := 0
	for _, candidate := range names {
		if candidate == name {
			n++
		}
	}
	return n
}

type failingGateway struct{}

func (failingGateway) OpenCharge(context.Context, ChargeRequest) (ChargeResult, error) {
	return ChargeResult{}, errors.New("gateway unavailable")
}

type failingFeatures struct{}

func (failingFeatures) CanUseBookingFee(context.Context, string) (bool, error) {
	return false, errors.New("plan service down")
}
