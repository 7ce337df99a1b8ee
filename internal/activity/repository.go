package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and prunes the activity_log table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a filtered page of audit entries, newest first, plus the
// total match count.
func (r *Repository) List(ctx context.Context, req ListRequest) ([]Entry, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if req.ActorID != nil {
		args = append(args, *req.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if req.Entity != nil && *req.Entity != "" {
		args = append(args, *req.Entity)
		where = append(where, fmt.Sprintf("entity = $%d", len(args)))
	}
	if req.Action != nil && *req.Action != "" {
		args = append(args, *req.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if req.Reference != nil && *req.Reference != "" {
		args = append(args, *req.Reference)
		where = append(where, fmt.Sprintf("reference = $%d", len(args)))
	}
	if req.From != nil {
		args = append(args, *req.From)
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if req.To != nil {
		args = append(args, *req.To)
		where = append(where, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, actor_id, action, entity, reference, ip, meta, occurred_at
FROM activity_log WHERE %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.Reference, &e.IP, &metaJSON, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Meta)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// DeleteOlderThan removes entries that occurred before the cutoff and
// reports how many rows were pruned.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
