package application

import (
	"context"
	"log/slog"
	"time"
)

// SettlementSweeper periodically force-expires stale transactions and
// releases matured wallet funds.
type SettlementSweeper struct {
	transactions *TransactionService
	wallets      *WalletService
	hold         time.Duration
	batch        int
	now          func() time.Time
	logger       *slog.Logger
}

// NewSettlementSweeper constructs a sweeper. hold is the settlement hold
// before pending funds become withdrawable.
func NewSettlementSweeper(transactions *TransactionService, wallets *WalletService, hold time.Duration, batch int, now func() time.Time, logger *slog.Logger) *SettlementSweeper {
	if batch <= 0 {
		batch = 100
	}
	if now == nil {
		now = time.Now
	}
	return &SettlementSweeper{
		transactions: transactions,
		wallets:      wallets,
		hold:         hold,
		batch:        batch,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

// Sweep runs one expiry pass followed by one release pass.
func (s *SettlementSweeper) Sweep(ctx context.Context, now time.Time) SweepReport {
	now = orNow(now, s.now)
	logger := serviceLogger(ctx, s.logger, "SettlementSweeper", "Sweep")

	var report SweepReport
	expired, err := s.transactions.ExpireStale(ctx, now, s.batch)
	report.Expired = expired
	if err != nil {
		report.Failed++
		logger.WarnContext(ctx, "expiry pass incomplete", "error", err)
	}
	released, err := s.wallets.ReleaseMatured(ctx, now, s.hold, s.batch)
	report.Released = released
	if err != nil {
		report.Failed++
		logger.WarnContext(ctx, "release pass incomplete", "error", err)
	}
	if report.Expired > 0 || report.Released > 0 {
		logger.InfoContext(ctx, "settlement sweep finished",
			"expired", report.Expired,
			"released", report.Released,
			"failed", report.Failed,
		)
	}
	return report
}

// Run sweeps every interval until ctx is cancelled.
func (s *SettlementSweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx, time.Time{})
		}
	}
}
