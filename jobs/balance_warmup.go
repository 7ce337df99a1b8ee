package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/hafsa-erp/hafsa-erp/internal/clients"
)

// BalanceWarmupJob re-primes cached balances for clients that recently
// transacted so the first showroom lookup of the day is warm.
type BalanceWarmupJob struct {
	Clients *clients.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewBalanceWarmupJob wires dependencies for the warmup handler.
func NewBalanceWarmupJob(clientsSvc *clients.Service, pool *pgxpool.Pool, logger *slog.Logger) *BalanceWarmupJob {
	return &BalanceWarmupJob{
		Clients: clientsSvc,
		Pool:    pool,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskBalanceWarmup tasks.
func (j *BalanceWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Clients == nil || j.Pool == nil {
		return errors.New("balance warmup: handler not configured")
	}
	var payload BalanceWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 100
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 30
	}

	logger := j.logger().With(slog.Int("limit", payload.Limit), slog.Int("window_days", payload.WindowDays))
	logger.Info("starting balance warmup")
	start := j.clock()

	ids, err := j.hotClients(ctx, payload)
	if err != nil {
		logger.Error("load warmup clients", slog.Any("error", err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	var warmed atomic.Int64
	for _, id := range ids {
		id := id
		g.Go(func() error {
			warmCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			if _, err := j.Clients.Balance(warmCtx, id); err != nil {
				logger.Warn("warm client balance", slog.Int64("client_id", id), slog.Any("error", err))
				return nil
			}
			warmed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("completed balance warmup", slog.Int64("warmed", warmed.Load()), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *BalanceWarmupJob) hotClients(ctx context.Context, payload BalanceWarmupPayload) ([]int64, error) {
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT i.client_id
FROM sale_invoices i
JOIN clients c ON c.id = i.client_id
WHERE i.client_id IS NOT NULL AND c.is_active = TRUE AND i.created_at > NOW() - ($1 * INTERVAL '1 day')
LIMIT $2`, payload.WindowDays, payload.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *BalanceWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
