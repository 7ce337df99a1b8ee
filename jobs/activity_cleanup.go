package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hafsa-erp/hafsa-erp/internal/activity"
)

// ActivityCleanupJob prunes the audit trail past the retention window.
type ActivityCleanupJob struct {
	Activity  *activity.Service
	Retention time.Duration
	Logger    *slog.Logger
}

// NewActivityCleanupJob wires dependencies for the cleanup handler.
func NewActivityCleanupJob(activitySvc *activity.Service, retention time.Duration, logger *slog.Logger) *ActivityCleanupJob {
	return &ActivityCleanupJob{Activity: activitySvc, Retention: retention, Logger: logger}
}

// Handle processes TaskActivityCleanup tasks.
func (j *ActivityCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Activity == nil {
		return errors.New("activity cleanup: handler not configured")
	}
	var payload ActivityCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	retention := j.Retention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	pruned, err := j.Activity.Cleanup(ctx, retention)
	if err != nil {
		j.logger().Error("activity cleanup", slog.Any("error", err))
		return err
	}
	j.logger().Info("completed activity cleanup", slog.Int64("pruned", pruned), slog.Duration("retention", retention))
	return nil
}

func (j *ActivityCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
