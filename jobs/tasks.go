package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskFormulaCostRefresh re-prices formula lines from the item master.
	TaskFormulaCostRefresh = "bom:cost_refresh"
)

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// FormulaCostRefreshPayload selects the tenant scope. CompanyID zero means
// every company with formulas.
type FormulaCostRefreshPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewFormulaCostRefreshTask constructs the cost refresh task.
func NewFormulaCostRefreshTask(companyID int64) (*asynq.Task, error) {
	body, err := json.Marshal(FormulaCostRefreshPayload{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFormulaCostRefresh, body, asynq.Queue(QueueDefault)), nil
}
