package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/booking-pipeline/internal/availability"
	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/scheduler"
)

// AvailabilityService lists free slots of a service.
type AvailabilityService struct {
	catalog      persistence.CatalogRepository
	appointments persistence.AppointmentRepository
	engine       *availability.Engine
	now          func() time.Time
	logger       *slog.Logger
}

// NewAvailabilityService constructs an availability service with the provided dependencies.
func NewAvailabilityService(catalog persistence.CatalogRepository, appointments persistence.AppointmentRepository, engine *availability.Engine, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(catalog, appointments, engine, now, nil)
}

// NewAvailabilityServiceWithLogger constructs an availability service with a specified logger.
func NewAvailabilityServiceWithLogger(catalog persistence.CatalogRepository, appointments persistence.AppointmentRepository, engine *availability.Engine, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if engine == nil {
		engine = availability.NewEngine(0)
	}
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{
		catalog:      catalog,
		appointments: appointments,
		engine:       engine,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// FreeSlots returns the bookable start instants of a service between two
// inclusive civil dates in the business's time zone.
func (s *AvailabilityService) FreeSlots(ctx context.Context, q SlotQuery) (slots []time.Time, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	now := orNow(q.Now, s.now)
	logger := serviceLogger(ctx, s.logger, "AvailabilityService", "FreeSlots",
		"business_id", q.BusinessID,
		"service_id", q.ServiceID,
		"from", q.From.String(),
		"to", q.To.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute free slots", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "free slots computed", "count", len(slots))
	}()

	vErr := &ValidationError{}
	if strings.TrimSpace(q.BusinessID) == "" {
		vErr.add("businessId", "business id is required")
	}
	if strings.TrimSpace(q.ServiceID) == "" {
		vErr.add("serviceId", "service id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.engine.ValidateRange(q.From, q.To); err != nil {
		return
	}

	service, err := bookableService(ctx, s.catalog, q.BusinessID, q.ServiceID)
	if err != nil {
		return
	}
	cal, err := s.catalog.GetCalendar(ctx, q.BusinessID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	existing, err := blockingBookings(ctx, s.appointments, q.BusinessID, cal.Rules, q.From, q.To)
	if err != nil {
		return
	}

	slots, err = s.engine.FreeSlots(availability.Query{
		Rules:    cal.Rules,
		Duration: time.Duration(service.DurationMinutes) * time.Minute,
		From:     q.From,
		To:       q.To,
		Existing: existing,
		Now:      now,
	})
	return
}

// bookableService loads a service and checks it is active and belongs to businessID.
func bookableService(ctx context.Context, catalog persistence.CatalogRepository, businessID, serviceID string) (persistence.Service, error) {
	service, err := catalog.GetService(ctx, serviceID)
	if err != nil {
		return persistence.Service{}, mapRepoError(err)
	}
	if service.BusinessID != businessID || !service.Active {
		return persistence.Service{}, fmt.Errorf("%w: service %s is not bookable at business %s", ErrNotFound, serviceID, businessID)
	}
	return service, nil
}

// blockingBookings lists the busy intervals of a business across the local
// days from..to inclusive.
func blockingBookings(ctx context.Context, appointments persistence.AppointmentRepository, businessID string, rules calendar.Rules, from, to calendar.Date) ([]scheduler.Booking, error) {
	loc := rules.Loc()
	appts, err := appointments.ListBlockingAppointments(ctx, businessID, from.At(loc, 0), to.AddDays(1).At(loc, 0))
	if err != nil {
		return nil, mapRepoError(err)
	}
	bookings := make([]scheduler.Booking, 0, len(appts))
	for _, appt := range appts {
		bookings = append(bookings, scheduler.Booking{
			ID:       appt.ID,
			Interval: scheduler.Interval{Start: appt.ScheduledAt, End: appt.EndsAt()},
		})
	}
	return bookings, nil
}
