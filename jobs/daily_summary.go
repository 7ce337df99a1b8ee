package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/hafsa-erp/hafsa-erp/internal/reports"
)

const dailySummaryTTL = 48 * time.Hour

// DailySummaryJob materialises one day of sales aggregates into Redis
// so dashboard reads skip the aggregate queries.
type DailySummaryJob struct {
	Reports *reports.Service
	Redis   *redis.Client
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewDailySummaryJob wires dependencies for the summary handler.
func NewDailySummaryJob(reportsSvc *reports.Service, redisClient *redis.Client, logger *slog.Logger) *DailySummaryJob {
	return &DailySummaryJob{
		Reports: reportsSvc,
		Redis:   redisClient,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskDailySalesSummary tasks.
func (j *DailySummaryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("daily summary: handler not configured")
	}
	var payload DailySummaryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	day := j.clock().AddDate(0, 0, -1)
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		day = parsed
	}

	summary, err := j.Reports.DailySummary(ctx, day)
	if err != nil {
		j.logger().Error("build daily summary", slog.Any("error", err))
		return err
	}

	if j.Redis != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("reports:daily:%s", day.Format("2006-01-02"))
		if err := j.Redis.Set(ctx, key, data, dailySummaryTTL).Err(); err != nil {
			j.logger().Warn("cache daily summary", slog.String("key", key), slog.Any("error", err))
		}
	}

	j.logger().Info("completed daily summary",
		slog.String("day", day.Format("2006-01-02")),
		slog.Int("invoices", summary.InvoiceCount),
		slog.String("revenue", summary.Revenue.StringFixed(2)))
	return nil
}

func (j *DailySummaryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
