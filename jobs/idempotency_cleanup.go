package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

const defaultRetentionHours = 72

// KeyCleaner prunes idempotency keys older than the retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob deletes expired idempotency keys.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle removes keys past the payload retention.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = defaultRetentionHours
	}
	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskIdempotencyCleanup))
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	return exclusive(ctx, j.Locker, TaskIdempotencyCleanup, DefaultLockTTL, logger, tracker, func(ctx context.Context) error {
		removed, err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
		if err != nil {
			logger.Error("cleanup failed", slog.Any("error", err))
			return err
		}
		logger.Info("completed idempotency cleanup", slog.Int64("removed", removed), slog.Int("retention_hours", payload.RetentionHours))
		return nil
	})
}
