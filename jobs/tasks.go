// Package jobs holds the asynq task definitions and the worker that
// processes them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskBalanceWarmup re-primes cached balances for recently active clients.
	TaskBalanceWarmup = "balances:warmup"
	// TaskActivityCleanup prunes audit entries past the retention window.
	TaskActivityCleanup = "activity:cleanup"
	// TaskDailySalesSummary materialises one day of sales aggregates.
	TaskDailySalesSummary = "reports:daily_summary"
)

// BalanceWarmupPayload bounds how many clients get re-primed per run.
type BalanceWarmupPayload struct {
	Limit      int `json:"limit"`
	WindowDays int `json:"window_days"`
}

// NewBalanceWarmupTask constructs an Asynq task.
func NewBalanceWarmupTask(payload BalanceWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceWarmup, data), nil
}

// ActivityCleanupPayload overrides the configured retention when set.
type ActivityCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewActivityCleanupTask constructs an Asynq task.
func NewActivityCleanupTask(payload ActivityCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityCleanup, data), nil
}

// DailySummaryPayload names the day to aggregate; empty means yesterday.
type DailySummaryPayload struct {
	Date string `json:"date"`
}

// NewDailySalesSummaryTask constructs an Asynq task.
func NewDailySalesSummaryTask(payload DailySummaryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailySalesSummary, data), nil
}
