package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/booking-pipeline/internal/application"
	"github.com/example/booking-pipeline/internal/availability"
	"github.com/example/booking-pipeline/internal/config"
	"github.com/example/booking-pipeline/internal/events"
	"github.com/example/booking-pipeline/internal/gateway/omise"
	httptransport "github.com/example/booking-pipeline/internal/http"
	"github.com/example/booking-pipeline/internal/logging"
	"github.com/example/booking-pipeline/internal/obs"
	"github.com/example/booking-pipeline/internal/persistence/sqlite"
	"github.com/example/booking-pipeline/internal/persistence/sqlite/migration"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const serviceName = "bookingd"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bookingd stopped with error", "error", err)
		os.Exit(1)
	}
}

// run serves HTTP and drives the outbox relay and settlement sweeper until
// ctx is cancelled or one of them fails.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := obs.Setup(ctx, cfg.OTelEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("booking API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.relay.Run(gctx, cfg.RelayInterval)
	})
	g.Go(func() error {
		return app.sweeper.Run(gctx, cfg.SweepInterval)
	})
	return g.Wait()
}

// service bundles the wired components of bookingd.
type service struct {
	handler http.Handler
	relay   *events.Relay
	sweeper *application.SettlementSweeper
	closers []func() error
	logger  *slog.Logger
}

// Close releases resources in reverse acquisition order.
func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("failed to release resource", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (svc *service, err error) {
	svc = &service{logger: logger}
	defer func() {
		if err != nil {
			svc.Close()
			svc = nil
		}
	}()

	store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
	if err != nil {
		return svc, fmt.Errorf("open storage: %w", err)
	}
	svc.closers = append(svc.closers, store.Close)
	if err := store.Migrate(ctx); err != nil {
		return svc, fmt.Errorf("apply migrations: %w", err)
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.DialAMQP(ctx, cfg.AMQPURL, cfg.AMQPExchange, 30*time.Second, logger)
		if err != nil {
			return svc, err
		}
		svc.closers = append(svc.closers, amqpPublisher.Close)
		publisher = amqpPublisher
	}

	var gateway application.PaymentGateway = application.NoopGateway{}
	if cfg.GatewayConfigured() {
		omiseGateway, err := omise.New(cfg.OmisePublicKey, cfg.OmiseSecretKey, logger)
		if err != nil {
			return svc, err
		}
		gateway = omiseGateway
	}

	var features application.FeatureGate = application.AllowAllFeatures{}
	if len(cfg.FeeFeatureAllowlist) > 0 {
		features = application.NewCachedFeatureGate(application.NewAllowlistFeatureGate(cfg.FeeFeatureAllowlist), 0, 0, nil)
	}

	signer, err := httptransport.NewSigner([]byte(cfg.WebhookSecret))
	if err != nil {
		return svc, fmt.Errorf("webhook signer: %w", err)
	}

	idGenerator := uuid.NewString
	now := time.Now
	engine := availability.NewEngine(cfg.MaxRangeDays)

	transactions := application.NewTransactionServiceWithLogger(store, idGenerator, now, logger)
	wallets := application.NewWalletServiceWithLogger(store, idGenerator, now, logger)
	slots := application.NewAvailabilityServiceWithLogger(store, store, engine, now, logger)
	appointments := application.NewAppointmentService(application.AppointmentServiceDeps{
		Store:        store,
		Engine:       engine,
		Features:     features,
		Gateway:      gateway,
		Transactions: transactions,
		FeeTTL:       cfg.FeeTTL,
		IDGenerator:  idGenerator,
		Now:          now,
		Logger:       logger,
	})

	svc.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Webhooks:     httptransport.NewWebhookHandler(transactions, signer, logger),
		Slots:        httptransport.NewSlotHandler(slots, logger),
		Appointments: httptransport.NewAppointmentHandler(appointments, logger),
		Wallets:      httptransport.NewWalletHandler(wallets, logger),
		Transactions: httptransport.NewTransactionHandler(transactions, logger),
		Logger:       logger,
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
	svc.relay = events.NewRelay(store, publisher, events.DefaultBatchSize, now, logger)
	svc.sweeper = application.NewSettlementSweeper(transactions, wallets, cfg.SettlementHold, 0, now, logger)
	return svc, nil
}
