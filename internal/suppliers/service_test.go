package suppliers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

type fakeSupplierRepo struct {
	nextID    int64
	rows      map[int64]Supplier
	createdOn int
}

func newFakeSupplierRepo() *fakeSupplierRepo {
	return &fakeSupplierRepo{rows: make(map[int64]Supplier)}
}

func (f *fakeSupplierRepo) CountCreatedOn(_ context.Context, _ time.Time) (int, error) {
	return f.createdOn, nil
}

func (f *fakeSupplierRepo) Insert(_ context.Context, s Supplier) (int64, error) {
	f.nextID++
	s.ID = f.nextID
	f.rows[s.ID] = s
	f.createdOn++
	return s.ID, nil
}

func (f *fakeSupplierRepo) Get(_ context.Context, id int64) (*Supplier, error) {
	s, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("supplier %d: %w", id, httpx.ErrNotFound)
	}
	return &s, nil
}

func (f *fakeSupplierRepo) List(_ context.Context, _ ListSuppliersRequest) ([]Supplier, int, error) {
	out := make([]Supplier, 0, len(f.rows))
	for _, s := range f.rows {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (f *fakeSupplierRepo) Update(_ context.Context, id int64, updates map[string]any) error {
	s, ok := f.rows[id]
	if !ok {
		return httpx.ErrNotFound
	}
	if name, ok := updates["name"].(string); ok {
		s.Name = name
	}
	f.rows[id] = s
	return nil
}

func (f *fakeSupplierRepo) SoftDelete(_ context.Context, id int64) error {
	s, ok := f.rows[id]
	if !ok {
		return httpx.ErrNotFound
	}
	s.IsActive = false
	f.rows[id] = s
	return nil
}

type recordedActivity struct {
	entries []shared.ActivityEntry
}

func (r *recordedActivity) Record(_ context.Context, entry shared.ActivityEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func TestSupplierCreateAssignsReference(t *testing.T) {
	repo := newFakeSupplierRepo()
	activity := &recordedActivity{}
	svc := NewService(repo, activity)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	created, err := svc.Create(context.Background(), CreateSupplierRequest{Name: "Atelier Or"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "SUP-20250601-0001", created.Reference)
	assert.True(t, created.IsActive)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, "supplier", activity.entries[0].Entity)
}

func TestSupplierUpdateAndDeactivate(t *testing.T) {
	repo := newFakeSupplierRepo()
	svc := NewService(repo, nil)
	created, err := svc.Create(context.Background(), CreateSupplierRequest{Name: "old name"}, 1)
	require.NoError(t, err)

	name := "new name"
	updated, err := svc.Update(context.Background(), created.ID, UpdateSupplierRequest{Name: &name}, 1)
	require.NoError(t, err)
	assert.Equal(t, "new name", updated.Name)

	require.NoError(t, svc.Deactivate(context.Background(), created.ID, 1))
	got, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestSupplierUpdateUnknownID(t *testing.T) {
	svc := NewService(newFakeSupplierRepo(), nil)
	name := "ghost"
	_, err := svc.Update(context.Background(), 12, UpdateSupplierRequest{Name: &name}, 1)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
