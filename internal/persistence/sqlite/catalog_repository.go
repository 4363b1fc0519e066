package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/booking-pipeline/internal/calendar"
	"github.com/example/booking-pipeline/internal/persistence"
)

// SaveBusiness inserts or updates a business.
func (r *repos) SaveBusiness(ctx context.Context, b persistence.Business) error {
	if b.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if b.TimeZone == "" {
		b.TimeZone = "UTC"
	}
	if b.FeeKind == "" {
		b.FeeKind = persistence.FeeFixed
	}
	const query = `
		INSERT INTO businesses (
			id, name, currency, time_zone, requires_booking_fee, fee_kind, fee_fixed_cents,
			fee_percent, commission_percent, allow_reschedule, allow_cancel,
			reschedule_advance_hours, cancel_advance_hours, cancel_unpaid, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			currency = excluded.currency,
			time_zone = excluded.time_zone,
			requires_booking_fee = excluded.requires_booking_fee,
			fee_kind = excluded.fee_kind,
			fee_fixed_cents = excluded.fee_fixed_cents,
			fee_percent = excluded.fee_percent,
			commission_percent = excluded.commission_percent,
			allow_reschedule = excluded.allow_reschedule,
			allow_cancel = excluded.allow_cancel,
			reschedule_advance_hours = excluded.reschedule_advance_hours,
			cancel_advance_hours = excluded.cancel_advance_hours,
			cancel_unpaid = excluded.cancel_unpaid,
			updated_at = excluded.updated_at`
	_, err := r.q.ExecContext(ctx, query,
		b.ID, b.Name, b.Currency, b.TimeZone, b.RequiresBookingFee, string(b.FeeKind), b.FeeFixedCents,
		b.FeePercent.String(), b.CommissionPercent.String(), b.AllowReschedule, b.AllowCancel,
		b.RescheduleAdvanceHours, b.CancelAdvanceHours, b.CancelUnpaid,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetBusiness loads a business by ID.
func (r *repos) GetBusiness(ctx context.Context, id string) (persistence.Business, error) {
	const query = `
		SELECT id, name, currency, time_zone, requires_booking_fee, fee_kind, fee_fixed_cents,
			fee_percent, commission_percent, allow_reschedule, allow_cancel,
			reschedule_advance_hours, cancel_advance_hours, cancel_unpaid, created_at, updated_at
		FROM businesses WHERE id = ?`

	var (
		b                    persistence.Business
		feeKind              string
		createdAt, updatedAt string
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.Currency, &b.TimeZone, &b.RequiresBookingFee, &feeKind, &b.FeeFixedCents,
		&b.FeePercent, &b.CommissionPercent, &b.AllowReschedule, &b.AllowCancel,
		&b.RescheduleAdvanceHours, &b.CancelAdvanceHours, &b.CancelUnpaid, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.Business{}, r.mapper.MapError(err)
	}
	b.FeeKind = persistence.FeeKind(feeKind)
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Business{}, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Business{}, err
	}
	return b, nil
}

// SaveService inserts or updates a service.
func (r *repos) SaveService(ctx context.Context, s persistence.Service) error {
	if s.ID == "" || s.BusinessID == "" {
		return persistence.ErrConstraintViolation
	}
	const query = `
		INSERT INTO services (
			id, business_id, name, duration_minutes, price_cents, promo_price_cents,
			promo_starts_at, promo_ends_at, allow_reschedule, allow_cancel, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			price_cents = excluded.price_cents,
			promo_price_cents = excluded.promo_price_cents,
			promo_starts_at = excluded.promo_starts_at,
			promo_ends_at = excluded.promo_ends_at,
			allow_reschedule = excluded.allow_reschedule,
			allow_cancel = excluded.allow_cancel,
			active = excluded.active,
			updated_at = excluded.updated_at`
	var promo any
	if s.PromoPriceCents != nil {
		promo = *s.PromoPriceCents
	}
	_, err := r.q.ExecContext(ctx, query,
		s.ID, s.BusinessID, s.Name, s.DurationMinutes, s.PriceCents, promo,
		nullableTime(s.PromoStartsAt), nullableTime(s.PromoEndsAt), s.AllowReschedule, s.AllowCancel, s.Active,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetService loads a service by ID.
func (r *repos) GetService(ctx context.Context, id string) (persistence.Service, error) {
	const query = `
		SELECT id, business_id, name, duration_minutes, price_cents, promo_price_cents,
			promo_starts_at, promo_ends_at, allow_reschedule, allow_cancel, active, created_at, updated_at
		FROM services WHERE id = ?`

	var (
		s                    persistence.Service
		promo                sql.NullInt64
		promoStart, promoEnd sql.NullString
		createdAt, updatedAt string
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.PriceCents, &promo,
		&promoStart, &promoEnd, &s.AllowReschedule, &s.AllowCancel, &s.Active, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.Service{}, r.mapper.MapError(err)
	}
	if promo.Valid {
		p := promo.Int64
		s.PromoPriceCents = &p
	}
	if s.PromoStartsAt, err = parseNullTime(promoStart); err != nil {
		return persistence.Service{}, err
	}
	if s.PromoEndsAt, err = parseNullTime(promoEnd); err != nil {
		return persistence.Service{}, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Service{}, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Service{}, err
	}
	return s, nil
}

// SaveCalendar replaces the calendar rules of a business. Callers outside a
// unit of work should use Store.SaveCalendar.
func (r *repos) SaveCalendar(ctx context.Context, cal persistence.Calendar) error {
	if err := cal.Rules.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	rules := cal.Rules

	const upsertRules = `
		INSERT INTO calendar_rules (business_id, slot_granularity_minutes, min_advance_hours, earliest_minute, latest_minute, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id) DO UPDATE SET
			slot_granularity_minutes = excluded.slot_granularity_minutes,
			min_advance_hours = excluded.min_advance_hours,
			earliest_minute = excluded.earliest_minute,
			latest_minute = excluded.latest_minute,
			updated_at = excluded.updated_at`
	if _, err := r.q.ExecContext(ctx, upsertRules,
		cal.BusinessID, rules.SlotGranularityMinutes, rules.MinAdvanceHours,
		nullableInt(rules.EarliestMinute), nullableInt(rules.LatestMinute), formatTime(cal.UpdatedAt),
	); err != nil {
		return r.mapper.MapError(err)
	}

	for _, table := range []string{"calendar_windows", "blocked_dates", "blocked_ranges"} {
		if _, err := r.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE business_id = ?", cal.BusinessID); err != nil {
			return r.mapper.MapError(err)
		}
	}

	for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
		for _, w := range rules.Weekly[weekday] {
			if _, err := r.q.ExecContext(ctx,
				`INSERT INTO calendar_windows (business_id, weekday, open_minute, close_minute) VALUES (?, ?, ?, ?)`,
				cal.BusinessID, int(weekday), w.OpenMinute, w.CloseMinute,
			); err != nil {
				return r.mapper.MapError(err)
			}
		}
	}
	for _, d := range rules.BlockedDates {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO blocked_dates (business_id, date, recurring) VALUES (?, ?, ?)`,
			cal.BusinessID, d.Date.String(), d.Recurring,
		); err != nil {
			return r.mapper.MapError(err)
		}
	}
	for _, br := range rules.BlockedRanges {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO blocked_ranges (business_id, date, start_minute, end_minute) VALUES (?, ?, ?, ?)`,
			cal.BusinessID, br.Date.String(), br.StartMinute, br.EndMinute,
		); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

// GetCalendar loads the calendar of a business in the business's time zone.
func (r *repos) GetCalendar(ctx context.Context, businessID string) (persistence.Calendar, error) {
	const rulesQuery = `
		SELECT c.slot_granularity_minutes, c.min_advance_hours, c.earliest_minute, c.latest_minute, c.updated_at, b.time_zone
		FROM calendar_rules c JOIN businesses b ON b.id = c.business_id
		WHERE c.business_id = ?`

	var (
		cal              = persistence.Calendar{BusinessID: businessID}
		earliest, latest sql.NullInt64
		updatedAt, zone  string
	)
	err := r.q.QueryRowContext(ctx, rulesQuery, businessID).Scan(
		&cal.Rules.SlotGranularityMinutes, &cal.Rules.MinAdvanceHours, &earliest, &latest, &updatedAt, &zone,
	)
	if err != nil {
		return persistence.Calendar{}, r.mapper.MapError(err)
	}
	if cal.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Calendar{}, err
	}
	if cal.Rules.Location, err = time.LoadLocation(zone); err != nil {
		return persistence.Calendar{}, fmt.Errorf("load business time zone %q: %w", zone, err)
	}
	cal.Rules.EarliestMinute = intPtr(earliest)
	cal.Rules.LatestMinute = intPtr(latest)

	if cal.Rules.Weekly, err = r.loadWindows(ctx, businessID); err != nil {
		return persistence.Calendar{}, err
	}
	if cal.Rules.BlockedDates, err = r.loadBlockedDates(ctx, businessID); err != nil {
		return persistence.Calendar{}, err
	}
	if cal.Rules.BlockedRanges, err = r.loadBlockedRanges(ctx, businessID); err != nil {
		return persistence.Calendar{}, err
	}
	return cal, nil
}

func (r *repos) loadWindows(ctx context.Context, businessID string) (map[time.Weekday][]calendar.Window, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT weekday, open_minute, close_minute FROM calendar_windows WHERE business_id = ? ORDER BY weekday, open_minute`,
		businessID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	weekly := make(map[time.Weekday][]calendar.Window)
	for rows.Next() {
		var (
			weekday int
			w       calendar.Window
		)
		if err := rows.Scan(&weekday, &w.OpenMinute, &w.CloseMinute); err != nil {
			return nil, r.mapper.MapError(err)
		}
		weekly[time.Weekday(weekday)] = append(weekly[time.Weekday(weekday)], w)
	}
	return weekly, r.mapper.MapError(rows.Err())
}

func (r *repos) loadBlockedDates(ctx context.Context, businessID string) ([]calendar.BlockedDate, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT date, recurring FROM blocked_dates WHERE business_id = ? ORDER BY date`, businessID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var dates []calendar.BlockedDate
	for rows.Next() {
		var (
			raw       string
			recurring bool
		)
		if err := rows.Scan(&raw, &recurring); err != nil {
			return nil, r.mapper.MapError(err)
		}
		d, err := calendar.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, calendar.BlockedDate{Date: d, Recurring: recurring})
	}
	return dates, r.mapper.MapError(rows.Err())
}

func (r *repos) loadBlockedRanges(ctx context.Context, businessID string) ([]calendar.BlockedRange, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT date, start_minute, end_minute FROM blocked_ranges WHERE business_id = ? ORDER BY date, start_minute`, businessID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var ranges []calendar.BlockedRange
	for rows.Next() {
		var (
			raw string
			br  calendar.BlockedRange
		)
		if err := rows.Scan(&raw, &br.StartMinute, &br.EndMinute); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if br.Date, err = calendar.ParseDate(raw); err != nil {
			return nil, err
		}
		ranges = append(ranges, br)
	}
	return ranges, r.mapper.MapError(rows.Err())
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
