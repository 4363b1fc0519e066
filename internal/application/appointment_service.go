package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/booking-pipeline/internal/appointment"
	"github.com/example/booking-pipeline/internal/availability"
	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/settlement"
)

// DefaultFeeTTL is how long a booking fee may stay unpaid.
const DefaultFeeTTL = 15 * time.Minute

// AppointmentServiceDeps groups the collaborators of AppointmentService.
type AppointmentServiceDeps struct {
	Store        persistence.Store
	Engine       *availability.Engine
	Features     FeatureGate
	Gateway      PaymentGateway
	Transactions *TransactionService
	FeeTTL       time.Duration
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

// AppointmentService books and manages appointments.
type AppointmentService struct {
	store        persistence.Store
	engine       *availability.Engine
	features     FeatureGate
	gateway      PaymentGateway
	transactions *TransactionService
	feeTTL       time.Duration
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewAppointmentService constructs an appointment service from deps.
func NewAppointmentService(deps AppointmentServiceDeps) *AppointmentService {
	s := &AppointmentService{
		store:        deps.Store,
		engine:       deps.Engine,
		features:     deps.Features,
		gateway:      deps.Gateway,
		transactions: deps.Transactions,
		feeTTL:       deps.FeeTTL,
		idGenerator:  deps.IDGenerator,
		now:          deps.Now,
		logger:       defaultLogger(deps.Logger),
	}
	if s.engine == nil {
		s.engine = availability.NewEngine(0)
	}
	if s.features == nil {
		s.features = AllowAllFeatures{}
	}
	if s.gateway == nil {
		s.gateway = NoopGateway{}
	}
	if s.feeTTL <= 0 {
		s.feeTTL = DefaultFeeTTL
	}
	if s.idGenerator == nil {
		s.idGenerator = func() string { return "" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.transactions == nil {
		s.transactions = NewTransactionServiceWithLogger(s.store, s.idGenerator, s.now, s.logger)
	}
	return s
}

func (s *AppointmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AppointmentService", operation, attrs...)
}

// Create books a slot. The slot is re-validated inside the unit that inserts
// the appointment, so of two racing bookings only one commits.
func (s *AppointmentService) Create(ctx context.Context, params CreateAppointmentParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	now := orNow(params.Now, s.now)
	ctx, span := startSpan(ctx, "AppointmentService", "Create")
	logger := s.loggerWith(ctx, "Create",
		"actor_id", params.Actor.ID,
		"business_id", params.BusinessID,
		"service_id", params.ServiceID,
		"scheduled_at", params.ScheduledAt,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "appointment created",
			"appointment_id", booking.Appointment.ID,
			"status", booking.Appointment.Status,
			"fee_status", booking.Appointment.FeeStatus,
		)
	}()

	if err = validateCreate(params); err != nil {
		return
	}
	switch params.Actor.Role {
	case RoleCustomer:
		if params.Actor.ID == "" || params.Actor.ID != params.CustomerID {
			err = ErrUnauthorized
			return
		}
	case RoleOperator:
		if !params.Actor.operates(params.BusinessID) {
			err = ErrUnauthorized
			return
		}
	default:
		err = ErrUnauthorized
		return
	}

	business, err := s.store.GetBusiness(ctx, params.BusinessID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	feeEnabled := business.RequiresBookingFee && s.bookingFeeAllowed(ctx, logger, business.ID)

	var (
		appt persistence.Appointment
		txn  *persistence.Transaction
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		appt, txn = persistence.Appointment{}, nil
		u := newUnit(repos, s.idGenerator, now)

		service, err := bookableService(ctx, repos, params.BusinessID, params.ServiceID)
		if err != nil {
			return err
		}
		cal, err := repos.GetCalendar(ctx, params.BusinessID)
		if err != nil {
			return err
		}
		q, err := s.slotQuery(ctx, repos, cal, service.DurationMinutes, params.ScheduledAt, "", now)
		if err != nil {
			return err
		}
		if !s.engine.IsFree(q, params.ScheduledAt) {
			return ErrSlotNoLongerAvailable
		}

		price := service.PriceCents
		var discount int64
		if service.PromoActive(now) {
			discount = price - *service.PromoPriceCents
		}
		var fee int64
		if feeEnabled {
			fee = bookingFee(business, price-discount)
		}
		status, feeStatus := appointment.Initial(fee > 0)

		appt = persistence.Appointment{
			ID:              s.idGenerator(),
			BusinessID:      params.BusinessID,
			ServiceID:       service.ID,
			CustomerID:      params.CustomerID,
			ScheduledAt:     params.ScheduledAt,
			DurationMinutes: service.DurationMinutes,
			PriceCents:      price,
			DiscountCents:   discount,
			Status:          status,
			FeeAmountCents:  fee,
			FeeStatus:       feeStatus,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if fee > 0 {
			txn = &persistence.Transaction{
				ID:                s.idGenerator(),
				BusinessID:        business.ID,
				AppointmentID:     appt.ID,
				AmountCents:       fee,
				Currency:          business.Currency,
				CommissionPercent: business.CommissionPercent,
				Status:            settlement.StatusPending,
				ExpiresAt:         now.Add(s.feeTTL),
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			appt.TransactionID = &txn.ID
		}

		if err := repos.CreateAppointment(ctx, appt); err != nil {
			return err
		}
		if err := u.emit(ctx, EventAppointmentCreated, appt.ID, appointmentEventData(appt)); err != nil {
			return err
		}
		if txn == nil {
			return nil
		}
		if err := repos.CreateTransaction(ctx, *txn); err != nil {
			return err
		}
		return u.emit(ctx, EventTransactionOpened, txn.ID, transactionEventData(*txn))
	})
	if err != nil {
		err = bookingError(err)
		return
	}

	booking = Booking{Appointment: appt, Transaction: txn}
	if txn != nil {
		booking.Transaction = s.openCharge(ctx, logger, business, *txn, now)
	}
	return
}

// Reschedule moves an appointment to a new slot, keeping its duration.
func (s *AppointmentService) Reschedule(ctx context.Context, params RescheduleAppointmentParams) (appt persistence.Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	now := orNow(params.Now, s.now)
	ctx, span := startSpan(ctx, "AppointmentService", "Reschedule")
	logger := s.loggerWith(ctx, "Reschedule",
		"actor_id", params.Actor.ID,
		"appointment_id", params.AppointmentID,
		"new_scheduled_at", params.NewScheduledAt,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to reschedule appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "appointment rescheduled")
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(params.AppointmentID) == "" {
		vErr.add("appointmentId", "appointment id is required")
	}
	if params.NewScheduledAt.IsZero() {
		vErr.add("scheduledAt", "new start time is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		u := newUnit(repos, s.idGenerator, now)

		current, err := repos.GetAppointment(ctx, params.AppointmentID)
		if err != nil {
			return err
		}
		if !params.Actor.canActOn(current) {
			return ErrUnauthorized
		}
		policy, err := loadPolicy(ctx, repos, current)
		if err != nil {
			return err
		}
		if err := appointment.CheckReschedule(current.Status, policy, now, current.ScheduledAt); err != nil {
			return err
		}

		cal, err := repos.GetCalendar(ctx, current.BusinessID)
		if err != nil {
			return err
		}
		q, err := s.slotQuery(ctx, repos, cal, current.DurationMinutes, params.NewScheduledAt, current.ID, now)
		if err != nil {
			return err
		}
		if !s.engine.IsFree(q, params.NewScheduledAt) {
			return ErrSlotNoLongerAvailable
		}

		previous := current.ScheduledAt
		appt = current
		appt.ScheduledAt = params.NewScheduledAt
		appt.UpdatedAt = now
		if err := repos.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		data := appointmentEventData(appt)
		data.PreviousScheduledAt = &previous
		data.ActorID = params.Actor.ID
		return u.emit(ctx, EventAppointmentRescheduled, appt.ID, data)
	})
	if err != nil {
		err = bookingError(err)
	}
	return
}

// Cancel cancels an appointment and any open fee transaction it holds.
// Force skips the policy flags and advance window and is reserved for
// operators of the appointment's business.
func (s *AppointmentService) Cancel(ctx context.Context, params CancelAppointmentParams) (appt persistence.Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	now := orNow(params.Now, s.now)
	ctx, span := startSpan(ctx, "AppointmentService", "Cancel")
	logger := s.loggerWith(ctx, "Cancel",
		"actor_id", params.Actor.ID,
		"appointment_id", params.AppointmentID,
		"force", params.Force,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "appointment cancelled", "fee_status", appt.FeeStatus)
	}()

	if strings.TrimSpace(params.AppointmentID) == "" {
		err = &ValidationError{FieldErrors: map[string]string{"appointmentId": "appointment id is required"}}
		return
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		u := newUnit(repos, s.idGenerator, now)

		current, err := repos.GetAppointment(ctx, params.AppointmentID)
		if err != nil {
			return err
		}
		if !params.Actor.canActOn(current) {
			return ErrUnauthorized
		}
		if params.Force && !params.Actor.operates(current.BusinessID) {
			return fmt.Errorf("%w: only operators may force a cancellation", ErrUnauthorized)
		}
		policy, err := loadPolicy(ctx, repos, current)
		if err != nil {
			return err
		}
		if err := appointment.CheckCancel(current.Status, policy, now, current.ScheduledAt, params.Force); err != nil {
			return err
		}

		appt = current
		appt.Status = appointment.StatusCancelled
		appt.UpdatedAt = now
		if reason := strings.TrimSpace(params.Reason); reason != "" {
			appt.CancellationReason = &reason
		}
		if err := repos.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		data := appointmentEventData(appt)
		data.Reason = strings.TrimSpace(params.Reason)
		data.FeePaid = appt.FeeStatus == appointment.FeePaid
		data.Forced = params.Force
		data.ActorID = params.Actor.ID
		if err := u.emit(ctx, EventAppointmentCancelled, appt.ID, data); err != nil {
			return err
		}

		if appt.TransactionID == nil {
			return nil
		}
		txn, err := repos.GetTransaction(ctx, *appt.TransactionID)
		if err != nil {
			return err
		}
		if !txn.Status.Open() {
			return nil
		}
		expected := txn.Status
		step := settlement.StatusCancelled
		if settlement.Expired(txn.Status, txn.ExpiresAt, now) {
			step = settlement.StatusExpired
		}
		if err := u.applySteps(ctx, &txn, []settlement.Status{step}, stepOptions{}); err != nil {
			return err
		}
		if err := repos.UpdateTransaction(ctx, txn, expected); err != nil {
			return err
		}
		reloaded, err := repos.GetAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		appt = reloaded
		return nil
	})
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// Start marks a confirmed appointment as started. Operators only.
func (s *AppointmentService) Start(ctx context.Context, params AppointmentTransitionParams) (persistence.Appointment, error) {
	return s.advance(ctx, "Start", params, appointment.StatusStarted, EventAppointmentStarted)
}

// Complete marks a started appointment as completed. Operators only.
func (s *AppointmentService) Complete(ctx context.Context, params AppointmentTransitionParams) (persistence.Appointment, error) {
	return s.advance(ctx, "Complete", params, appointment.StatusCompleted, EventAppointmentCompleted)
}

func (s *AppointmentService) advance(ctx context.Context, operation string, params AppointmentTransitionParams, to appointment.Status, event string) (appt persistence.Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	now := orNow(params.Now, s.now)
	ctx, span := startSpan(ctx, "AppointmentService", operation)
	logger := s.loggerWith(ctx, operation, "actor_id", params.Actor.ID, "appointment_id", params.AppointmentID)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "appointment transition failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "appointment transition applied", "status", appt.Status)
	}()

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		current, err := repos.GetAppointment(ctx, params.AppointmentID)
		if err != nil {
			return err
		}
		if !params.Actor.operates(current.BusinessID) {
			return ErrUnauthorized
		}
		next, err := appointment.Transition(current.Status, to)
		if err != nil {
			return err
		}
		appt = current
		appt.Status = next
		appt.UpdatedAt = now
		if err := repos.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		data := appointmentEventData(appt)
		data.ActorID = params.Actor.ID
		return newUnit(repos, s.idGenerator, now).emit(ctx, event, appt.ID, data)
	})
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// slotQuery builds the availability query for the local day of at.
func (s *AppointmentService) slotQuery(ctx context.Context, repos persistence.Repositories, cal persistence.Calendar, durationMinutes int, at time.Time, exclude string, now time.Time) (availability.Query, error) {
	day := calendar.DateOf(at.In(cal.Rules.Loc()))
	existing, err := blockingBookings(ctx, repos, cal.BusinessID, cal.Rules, day, day)
	if err != nil {
		return availability.Query{}, err
	}
	return availability.Query{
		Rules:    cal.Rules,
		Duration: time.Duration(durationMinutes) * time.Minute,
		From:     day,
		To:       day,
		Existing: existing,
		Exclude:  exclude,
		Now:      now,
	}, nil
}

// bookingFeeAllowed asks the feature gate. A denial or gate failure books
// without a fee.
func (s *AppointmentService) bookingFeeAllowed(ctx context.Context, logger *slog.Logger, businessID string) bool {
	allowed, err := s.features.CanUseBookingFee(ctx, businessID)
	if err != nil {
		logger.WarnContext(ctx, "feature gate failed, booking without fee", "error", err)
		return false
	}
	if !allowed {
		logger.InfoContext(ctx, "booking fee not enabled for business plan")
	}
	return allowed
}

// openCharge asks the gateway for a charge after the booking committed.
// Failures leave the transaction pending until it expires.
func (s *AppointmentService) openCharge(ctx context.Context, logger *slog.Logger, business persistence.Business, txn persistence.Transaction, now time.Time) *persistence.Transaction {
	charge, err := s.gateway.OpenCharge(ctx, ChargeRequest{
		TransactionID: txn.ID,
		BusinessID:    business.ID,
		AmountCents:   txn.AmountCents,
		Currency:      txn.Currency,
		Description:   fmt.Sprintf("Booking fee %s", business.Name),
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to open gateway charge", "transaction_id", txn.ID, "error", err)
		return &txn
	}
	outcome, err := s.transactions.AttachCharge(ctx, txn.ID, charge, now)
	if err != nil {
		logger.WarnContext(ctx, "failed to record gateway charge", "transaction_id", txn.ID, "reference", charge.Reference, "error", err, "error_kind", ErrorKind(err))
		return &txn
	}
	return &outcome.Transaction
}

func validateCreate(params CreateAppointmentParams) error {
	vErr := &ValidationError{}
	if strings.TrimSpace(params.BusinessID) == "" {
		vErr.add("businessId", "business id is required")
	}
	if strings.TrimSpace(params.ServiceID) == "" {
		vErr.add("serviceId", "service id is required")
	}
	if strings.TrimSpace(params.CustomerID) == "" {
		vErr.add("customerId", "customer id is required")
	}
	if params.ScheduledAt.IsZero() {
		vErr.add("scheduledAt", "start time is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// bookingFee computes the fee for a business on the charged price. A zero
// result means no fee.
func bookingFee(business persistence.Business, chargedCents int64) int64 {
	var fee int64
	switch business.FeeKind {
	case persistence.FeeFixed:
		fee = business.FeeFixedCents
	case persistence.FeePercent:
		fee = settlement.PercentOf(chargedCents, business.FeePercent)
	}
	if fee < 0 {
		return 0
	}
	return fee
}

func loadPolicy(ctx context.Context, repos persistence.Repositories, appt persistence.Appointment) (appointment.Policy, error) {
	business, err := repos.GetBusiness(ctx, appt.BusinessID)
	if err != nil {
		return appointment.Policy{}, err
	}
	service, err := repos.GetService(ctx, appt.ServiceID)
	if err != nil {
		return appointment.Policy{}, err
	}
	return appointment.Policy{
		BusinessAllowsReschedule: business.AllowReschedule,
		ServiceAllowsReschedule:  service.AllowReschedule,
		BusinessAllowsCancel:     business.AllowCancel,
		ServiceAllowsCancel:      service.AllowCancel,
		RescheduleAdvanceHours:   business.RescheduleAdvanceHours,
		CancelAdvanceHours:       business.CancelAdvanceHours,
	}, nil
}

// bookingError maps a failed booking unit. Contention that outlived the
// retries and a lost uniqueness race both mean the slot is gone.
func bookingError(err error) error {
	if errors.Is(err, persistence.ErrContention) || errors.Is(err, persistence.ErrStaleState) {
		return fmt.Errorf("%w: %v", ErrSlotNoLongerAvailable, err)
	}
	return mapRepoError(err)
}
