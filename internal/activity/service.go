package activity

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/export"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for the audit trail.
type RepositoryPort interface {
	List(ctx context.Context, req ListRequest) ([]Entry, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecorderPort writes new audit entries.
type RecorderPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service handles audit trail queries and maintenance.
type Service struct {
	repo     RepositoryPort
	recorder RecorderPort
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder RecorderPort) *Service {
	return &Service{repo: repo, recorder: recorder, now: time.Now}
}

// List returns a filtered page of audit entries.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Entry, int, error) {
	return s.repo.List(ctx, req)
}

const exportCap = 10000

// Export renders the filtered audit trail for download. The export
// itself is recorded against the acting user.
func (s *Service) Export(ctx context.Context, req ListRequest, actorID int64) (export.Table, error) {
	req.Page = 1
	req.PerPage = exportCap
	entries, _, err := s.repo.List(ctx, req)
	if err != nil {
		return export.Table{}, err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		meta := ""
		if len(e.Meta) > 0 {
			if b, err := json.Marshal(e.Meta); err == nil {
				meta = string(b)
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.OccurredAt.Format(time.RFC3339),
			strconv.FormatInt(e.ActorID, 10),
			e.Action,
			e.Entity,
			e.Reference,
			e.IP,
			meta,
		})
	}

	if s.recorder != nil {
		_ = s.recorder.Record(ctx, shared.ActivityEntry{
			ActorID:   actorID,
			Action:    "EXPORT",
			Entity:    "activity_log",
			Reference: "activity-export",
			Meta:      map[string]any{"rows": len(rows)},
		})
	}

	return export.Table{
		Name:    "activity",
		Headers: []string{"ID", "Occurred At", "Actor", "Action", "Entity", "Reference", "IP", "Meta"},
		Rows:    rows,
	}, nil
}

// Cleanup prunes entries older than the retention window.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
}
