package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
)

// EntrySource streams every ledger entry in append order.
type EntrySource interface {
	Entries(ctx context.Context, fn func(ledger.Entry) error) error
}

// LedgerVerifyJob replays customer ledgers and reports broken running balances.
type LedgerVerifyJob struct {
	Source  EntrySource
	Locker  Locker
	LockTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerVerifyJob constructs the verify handler.
func NewLedgerVerifyJob(source EntrySource, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{Source: source, Locker: locker, LockTTL: DefaultLockTTL, Logger: logger, Metrics: metrics}
}

// Handle executes one verification pass.
func (j *LedgerVerifyJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("ledger verify: handler not configured")
	}
	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskLedgerVerify))
	tracker := j.Metrics.Track(TaskLedgerVerify)
	return exclusive(ctx, j.Locker, TaskLedgerVerify, j.LockTTL, logger, tracker, func(ctx context.Context) error {
		start := time.Now()
		verifier := ledger.NewVerifier()
		if err := j.Source.Entries(ctx, verifier.Add); err != nil {
			logger.Error("ledger verify failed", slog.Any("error", err))
			return err
		}
		for _, m := range verifier.Mismatches {
			logger.Warn("ledger balance mismatch",
				slog.Int64("customer_id", m.CustomerID),
				slog.Int64("entry_id", m.EntryID),
				slog.String("stored", m.Stored.StringFixed(2)),
				slog.String("replayed", m.Replayed.StringFixed(2)),
			)
		}
		j.Metrics.AddLedgerMismatches(len(verifier.Mismatches))
		logger.Info("completed ledger verify",
			slog.Int("entries", verifier.Checked()),
			slog.Int("mismatches", len(verifier.Mismatches)),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	})
}
