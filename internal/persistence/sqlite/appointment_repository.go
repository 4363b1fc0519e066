package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/booking-pipeline/internal/appointment"
	"github.com/example/booking-pipeline/internal/persistence"
)

const appointmentColumns = `
	id, business_id, service_id, customer_id, scheduled_at, duration_minutes, price_cents,
	discount_cents, status, fee_amount_cents, fee_status, transaction_id, cancellation_reason,
	created_at, updated_at`

// CreateAppointment inserts a new appointment.
func (r *repos) CreateAppointment(ctx context.Context, a persistence.Appointment) error {
	if a.ID == "" || a.DurationMinutes <= 0 {
		return persistence.ErrConstraintViolation
	}
	const query = `
		INSERT INTO appointments (
			id, business_id, service_id, customer_id, scheduled_at, ends_at, duration_minutes, price_cents,
			discount_cents, status, fee_amount_cents, fee_status, transaction_id, cancellation_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		a.ID, a.BusinessID, a.ServiceID, a.CustomerID, formatTime(a.ScheduledAt), formatTime(a.EndsAt()),
		a.DurationMinutes, a.PriceCents, a.DiscountCents, string(a.Status), a.FeeAmountCents, string(a.FeeStatus),
		nullableString(a.TransactionID), nullableString(a.CancellationReason),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateAppointment writes the mutable fields of an appointment.
func (r *repos) UpdateAppointment(ctx context.Context, a persistence.Appointment) error {
	if a.ID == "" || a.DurationMinutes <= 0 {
		return persistence.ErrConstraintViolation
	}
	const query = `
		UPDATE appointments
		SET scheduled_at = ?, ends_at = ?, duration_minutes = ?, status = ?, fee_status = ?,
			transaction_id = ?, cancellation_reason = ?, updated_at = ?
		WHERE id = ?`
	result, err := r.q.ExecContext(ctx, query,
		formatTime(a.ScheduledAt), formatTime(a.EndsAt()), a.DurationMinutes, string(a.Status), string(a.FeeStatus),
		nullableString(a.TransactionID), nullableString(a.CancellationReason), formatTime(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetAppointment loads an appointment by ID.
func (r *repos) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return persistence.Appointment{}, r.mapper.MapError(err)
	}
	return a, nil
}

// ListBlockingAppointments returns the non-cancelled appointments of a
// business overlapping [from, to), ordered by start.
func (r *repos) ListBlockingAppointments(ctx context.Context, businessID string, from, to time.Time) ([]persistence.Appointment, error) {
	const where = ` FROM appointments
		WHERE business_id = ? AND status <> 'cancelled' AND scheduled_at < ? AND ends_at > ?
		ORDER BY scheduled_at, id`
	rows, err := r.q.QueryContext(ctx, `SELECT `+appointmentColumns+where, businessID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var appointments []persistence.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return appointments, nil
}

func scanAppointment(row scanner) (persistence.Appointment, error) {
	var (
		a                                 persistence.Appointment
		scheduledAt, createdAt, updatedAt string
		status, feeStatus                 string
		transactionID, reason             sql.NullString
	)
	if err := row.Scan(
		&a.ID, &a.BusinessID, &a.ServiceID, &a.CustomerID, &scheduledAt, &a.DurationMinutes, &a.PriceCents,
		&a.DiscountCents, &status, &a.FeeAmountCents, &feeStatus, &transactionID, &reason,
		&createdAt, &updatedAt,
	); err != nil {
		return persistence.Appointment{}, err
	}
	a.Status = appointment.Status(status)
	a.FeeStatus = appointment.FeeStatus(feeStatus)
	a.TransactionID = stringPtr(transactionID)
	a.CancellationReason = stringPtr(reason)

	var err error
	if a.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return persistence.Appointment{}, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Appointment{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Appointment{}, err
	}
	return a, nil
}
