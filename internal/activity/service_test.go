package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

type fakeActivityRepo struct {
	entries  []Entry
	lastList ListRequest
}

func (r *fakeActivityRepo) List(_ context.Context, req ListRequest) ([]Entry, int, error) {
	r.lastList = req
	var out []Entry
	for _, e := range r.entries {
		if req.Entity != nil && e.Entity != *req.Entity {
			continue
		}
		if req.Action != nil && e.Action != *req.Action {
			continue
		}
		if req.ActorID != nil && e.ActorID != *req.ActorID {
			continue
		}
		if req.From != nil && e.OccurredAt.Before(*req.From) {
			continue
		}
		if req.To != nil && !e.OccurredAt.Before(*req.To) {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (r *fakeActivityRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []Entry
	var pruned int64
	for _, e := range r.entries {
		if e.OccurredAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return pruned, nil
}

type fakeRecorder struct {
	entries []shared.ActivityEntry
}

func (r *fakeRecorder) Record(_ context.Context, entry shared.ActivityEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func seedEntries() []Entry {
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	return []Entry{
		{ID: 1, ActorID: 1, Action: "CREATE", Entity: "client", Reference: "CLI-20250701-0001", OccurredAt: base},
		{ID: 2, ActorID: 2, Action: "PAYMENT", Entity: "invoice", Reference: "INV-20250701-0001", Meta: map[string]any{"amount": "150.00"}, OccurredAt: base.Add(time.Hour)},
		{ID: 3, ActorID: 1, Action: "DELETE", Entity: "client", Reference: "CLI-20250701-0001", OccurredAt: base.Add(48 * time.Hour)},
	}
}

func TestListFiltersByEntityAndActor(t *testing.T) {
	repo := &fakeActivityRepo{entries: seedEntries()}
	svc := NewService(repo, nil)

	entity := "client"
	actor := int64(1)
	items, total, err := svc.List(context.Background(), ListRequest{Entity: &entity, ActorID: &actor})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, e := range items {
		assert.Equal(t, "client", e.Entity)
		assert.Equal(t, int64(1), e.ActorID)
	}
}

func TestListFiltersByDateRange(t *testing.T) {
	repo := &fakeActivityRepo{entries: seedEntries()}
	svc := NewService(repo, nil)

	from := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	to := time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC)
	items, _, err := svc.List(context.Background(), ListRequest{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "PAYMENT", items[0].Action)
}

func TestExportRendersRowsAndRecordsItself(t *testing.T) {
	repo := &fakeActivityRepo{entries: seedEntries()}
	recorder := &fakeRecorder{}
	svc := NewService(repo, recorder)

	table, err := svc.Export(context.Background(), ListRequest{}, 9)
	require.NoError(t, err)
	assert.Equal(t, "activity", table.Name)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "PAYMENT", table.Rows[1][3])
	assert.Contains(t, table.Rows[1][7], "150.00")
	assert.Equal(t, exportCap, repo.lastList.PerPage)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "EXPORT", recorder.entries[0].Action)
	assert.Equal(t, int64(9), recorder.entries[0].ActorID)
}

func TestCleanupPrunesBeforeRetentionCutoff(t *testing.T) {
	repo := &fakeActivityRepo{entries: seedEntries()}
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2025, 7, 3, 12, 0, 0, 0, time.UTC) }

	pruned, err := svc.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
	require.Len(t, repo.entries, 1)
	assert.Equal(t, int64(3), repo.entries[0].ID)
}
