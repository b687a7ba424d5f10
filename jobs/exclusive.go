package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// DefaultLockTTL bounds how long a crashed worker can block a job.
const DefaultLockTTL = 10 * time.Minute

// Locker obtains distributed locks. *redislock.Client satisfies it.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// exclusive runs fn while holding the job lock. When another worker holds the
// lock the run is skipped and nil is returned.
func exclusive(ctx context.Context, locker Locker, job string, ttl time.Duration, logger *slog.Logger, tracker *jobmetrics.Tracker, fn func(context.Context) error) error {
	if locker == nil {
		return tracker.End(fn(ctx))
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	lock, err := locker.Obtain(ctx, shared.JobLockKey(job), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.Info("job already running elsewhere, skipping", slog.String("job", job))
		tracker.Skip()
		return nil
	}
	if err != nil {
		return tracker.End(fmt.Errorf("jobs: obtain lock %s: %w", job, err))
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.Warn("release job lock", slog.String("job", job), slog.Any("error", releaseErr))
		}
	}()
	return tracker.End(fn(ctx))
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
