package sqlite

import (
	"context"
	"time"

	"github.com/example/booking-pipeline/internal/persistence"
)

// EnqueueEvent stores an event for later delivery.
func (r *repos) EnqueueEvent(ctx context.Context, e persistence.OutboxEvent) error {
	if e.ID == "" || e.Name == "" {
		return persistence.ErrConstraintViolation
	}
	const query = `
		INSERT INTO outbox (id, name, aggregate_id, payload, attempts, last_error, created_at, published_at)
		VALUES (?, ?, ?, ?, 0, '', ?, NULL)`
	_, err := r.q.ExecContext(ctx, query, e.ID, e.Name, e.AggregateID, e.Payload, formatTime(e.CreatedAt))
	return r.mapper.MapError(err)
}

// ListUnpublished returns undelivered events, oldest first.
func (r *repos) ListUnpublished(ctx context.Context, limit int) ([]persistence.OutboxEvent, error) {
	const query = `
		SELECT id, name, aggregate_id, payload, attempts, last_error, created_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY created_at, rowid LIMIT ?`
	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.OutboxEvent
	for rows.Next() {
		var (
			e         persistence.OutboxEvent
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.AggregateID, &e.Payload, &e.Attempts, &e.LastError, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// MarkPublished records a successful delivery.
func (r *repos) MarkPublished(ctx context.Context, id string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE outbox SET published_at = ?, last_error = '' WHERE id = ? AND published_at IS NULL`,
		formatTime(at), id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// MarkFailed counts a failed delivery attempt.
func (r *repos) MarkFailed(ctx context.Context, id string, reason string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		reason, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

