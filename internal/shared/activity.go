package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityEntry represents a record stored in activity_log.
type ActivityEntry struct {
	ActorID   int64
	Action    string
	Entity    string
	Reference string
	IP        string
	Meta      map[string]any
	At        time.Time
}

// ActivityRecorder writes records into activity_log.
type ActivityRecorder struct {
	pool *pgxpool.Pool
}

// NewActivityRecorder returns a new ActivityRecorder.
func NewActivityRecorder(pool *pgxpool.Pool) *ActivityRecorder {
	return &ActivityRecorder{pool: pool}
}

// Record persists the activity entry.
func (r *ActivityRecorder) Record(ctx context.Context, entry ActivityEntry) error {
	if r == nil {
		return errors.New("activity recorder not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.Reference == "" {
		return errors.New("activity entry requires action/entity/reference")
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO activity_log (actor_id, action, entity, reference, ip, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		entry.ActorID, entry.Action, entry.Entity, entry.Reference, entry.IP, metaJSON, at)
	return err
}
