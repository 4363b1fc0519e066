package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	Webhooks     *WebhookHandler
	Slots        *SlotHandler
	Appointments *AppointmentHandler
	Wallets      *WalletHandler
	Transactions *TransactionHandler
	Logger       *slog.Logger
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.Webhooks != nil {
		r.Post("/webhooks/payments", cfg.Webhooks.Receive)
	}
	if cfg.Slots != nil {
		r.Get("/businesses/{businessID}/services/{serviceID}/slots", cfg.Slots.List)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireActor(cfg.Logger))

		if cfg.Appointments != nil {
			r.Route("/appointments", func(r chi.Router) {
				r.Post("/", cfg.Appointments.Create)
				r.Post("/{appointmentID}/reschedule", cfg.Appointments.Reschedule)
				r.Post("/{appointmentID}/cancel", cfg.Appointments.Cancel)
				r.Post("/{appointmentID}/start", cfg.Appointments.Start)
				r.Post("/{appointmentID}/complete", cfg.Appointments.Complete)
			})
		}

		if cfg.Wallets != nil {
			r.Route("/businesses/{businessID}/wallet", func(r chi.Router) {
				r.Get("/", cfg.Wallets.Get)
				r.Get("/entries", cfg.Wallets.Entries)
				r.Post("/withdrawals", cfg.Wallets.Withdraw)
			})
		}

		if cfg.Transactions != nil {
			r.Route("/transactions/{transactionID}", func(r chi.Router) {
				r.Get("/", cfg.Transactions.Get)
				r.Post("/cancel", cfg.Transactions.Cancel)
				r.Post("/refund", cfg.Transactions.Refund)
				r.Post("/refund/complete", cfg.Transactions.CompleteRefund)
			})
		}
	})

	return r
}
