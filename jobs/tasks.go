package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockReconcile compares stock levels against their movement history.
	TaskStockReconcile = "stock:reconcile"
	// TaskLedgerVerify replays customer ledgers and checks stored balances.
	TaskLedgerVerify = "ledger:verify"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// CleanupPayload configures the idempotency key retention window.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewStockReconcileTask constructs the reconcile task.
func NewStockReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskStockReconcile, nil, asynq.Queue(QueueDefault))
}

// NewLedgerVerifyTask constructs the ledger verification task.
func NewLedgerVerifyTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerVerify, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewTask builds a task by name with its default payload.
func NewTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskStockReconcile:
		return NewStockReconcileTask(), nil
	case TaskLedgerVerify:
		return NewLedgerVerifyTask(), nil
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(defaultRetentionHours)
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", name)
	}
}
