// Package events delivers domain events queued in the outbox.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/booking-pipeline/internal/logging"
	"github.com/example/booking-pipeline/internal/persistence"
)

// DefaultBatchSize bounds the number of events delivered per poll.
const DefaultBatchSize = 100

// Message is one event handed to a Publisher.
type Message struct {
	ID          string
	Name        string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
}

// Publisher delivers a message to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Relay polls the outbox and hands undelivered events to a Publisher.
// Delivery is at least once; consumers deduplicate on Message.ID.
type Relay struct {
	outbox    persistence.OutboxRepository
	publisher Publisher
	batch     int
	now       func() time.Time
	logger    *slog.Logger
}

// NewRelay constructs a Relay.
func NewRelay(outbox persistence.OutboxRepository, publisher Publisher, batch int, now func() time.Time, logger *slog.Logger) *Relay {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{outbox: outbox, publisher: publisher, batch: batch, now: now, logger: logger}
}

// Flush delivers one batch of pending events in enqueue order and reports how
// many were published. A failed delivery is recorded on the event and the
// remaining events are still attempted.
func (r *Relay) Flush(ctx context.Context) (published int, err error) {
	if r == nil || r.outbox == nil || r.publisher == nil {
		return 0, fmt.Errorf("Relay is not configured")
	}
	logger := r.loggerFor(ctx)

	pending, err := r.outbox.ListUnpublished(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}
	for _, event := range pending {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		msg := Message{
			ID:          event.ID,
			Name:        event.Name,
			AggregateID: event.AggregateID,
			Payload:     event.Payload,
			OccurredAt:  event.CreatedAt,
		}
		if pubErr := r.publisher.Publish(ctx, msg); pubErr != nil {
			logger.WarnContext(ctx, "failed to publish event",
				"event_id", event.ID,
				"event", event.Name,
				"attempts", event.Attempts+1,
				"error", pubErr,
			)
			if markErr := r.outbox.MarkFailed(ctx, event.ID, pubErr.Error()); markErr != nil {
				logger.ErrorContext(ctx, "failed to record delivery failure", "event_id", event.ID, "error", markErr)
			}
			continue
		}
		if markErr := r.outbox.MarkPublished(ctx, event.ID, r.now()); markErr != nil {
			logger.ErrorContext(ctx, "failed to mark event published", "event_id", event.ID, "error", markErr)
			continue
		}
		published++
	}
	if published > 0 {
		logger.DebugContext(ctx, "outbox flushed", "published", published, "pending", len(pending))
	}
	return published, nil
}

// Run flushes every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.loggerFor(ctx).WarnContext(ctx, "outbox flush failed", "error", err)
			}
		}
	}
}

func (r *Relay) loggerFor(ctx context.Context) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = r.logger
	}
	return logger.With("component", "Relay")
}
