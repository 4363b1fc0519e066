package persistence

import (
	"context"
	"time"

	"github.com/example/booking-pipeline/internal/settlement"
)

// CatalogRepository stores businesses, services and their calendars.
type CatalogRepository interface {
	SaveBusiness(ctx context.Context, business Business) error
	GetBusiness(ctx context.Context, id string) (Business, error)
	SaveService(ctx context.Context, service Service) error
	GetService(ctx context.Context, id string) (Service, error)
	SaveCalendar(ctx context.Context, cal Calendar) error
	GetCalendar(ctx context.Context, businessID string) (Calendar, error)
}

// AppointmentRepository stores appointments. Appointments are never deleted.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appt Appointment) error
	UpdateAppointment(ctx context.Context, appt Appointment) error
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	// ListBlockingAppointments returns non-cancelled appointments of a
	// business that overlap [from, to).
	ListBlockingAppointments(ctx context.Context, businessID string, from, to time.Time) ([]Appointment, error)
}

// TransactionRepository stores booking-fee transactions.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, txn Transaction) error
	// UpdateTransaction writes txn only when the stored status still equals
	// expected, returning ErrStaleState otherwise.
	UpdateTransaction(ctx context.Context, txn Transaction, expected settlement.Status) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	GetTransactionByGatewayRef(ctx context.Context, ref string) (Transaction, error)
	// ListExpirable returns open transactions whose expiry is before now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]Transaction, error)
	// ListReleasable returns paid transactions settled at or before cutoff
	// whose funds are still pending.
	ListReleasable(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error)
}

// WalletRepository stores wallets and their ledger.
type WalletRepository interface {
	CreateWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, businessID string) (Wallet, error)
	UpdateWallet(ctx context.Context, w Wallet) error
	AppendWalletEntry(ctx context.Context, entry WalletEntry) error
	ListWalletEntries(ctx context.Context, businessID string) ([]WalletEntry, error)
}

// OutboxRepository queues domain events for asynchronous delivery.
type OutboxRepository interface {
	EnqueueEvent(ctx context.Context, event OutboxEvent) error
	ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Repositories groups every repository available inside a unit of work.
type Repositories interface {
	CatalogRepository
	AppointmentRepository
	TransactionRepository
	WalletRepository
	OutboxRepository
}

// Store provides repositories and atomic units of work over them.
type Store interface {
	Repositories
	// WithinTx runs fn in one atomic unit. fn's error rolls the unit back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
