package clients

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

type fakeClientRepo struct {
	nextID      int64
	rows        map[int64]Client
	createdOn   int
	countErr    error
	insertErr   error
	balances    map[int64]Balance
	balanceErr  error
	balanceHits int
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{rows: make(map[int64]Client), balances: make(map[int64]Balance)}
}

func (f *fakeClientRepo) CountCreatedOn(_ context.Context, _ time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.createdOn, nil
}

func (f *fakeClientRepo) Insert(_ context.Context, c Client) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	c.ID = f.nextID
	f.rows[c.ID] = c
	f.createdOn++
	return c.ID, nil
}

func (f *fakeClientRepo) Get(_ context.Context, id int64) (*Client, error) {
	c, ok := f.rows[id]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", id, httpx.ErrNotFound)
	}
	return &c, nil
}

func (f *fakeClientRepo) List(_ context.Context, _ ListClientsRequest) ([]Client, int, error) {
	out := make([]Client, 0, len(f.rows))
	for _, c := range f.rows {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (f *fakeClientRepo) Update(_ context.Context, id int64, updates map[string]any) error {
	c, ok := f.rows[id]
	if !ok {
		return httpx.ErrNotFound
	}
	if name, ok := updates["name"].(string); ok {
		c.Name = name
	}
	f.rows[id] = c
	return nil
}

func (f *fakeClientRepo) SoftDelete(_ context.Context, id int64) error {
	c, ok := f.rows[id]
	if !ok {
		return httpx.ErrNotFound
	}
	c.IsActive = false
	f.rows[id] = c
	return nil
}

func (f *fakeClientRepo) AggregateBalance(_ context.Context, clientID int64) (Balance, error) {
	f.balanceHits++
	if f.balanceErr != nil {
		return Balance{}, f.balanceErr
	}
	return f.balances[clientID], nil
}

type recordedActivity struct {
	entries []shared.ActivityEntry
}

func (r *recordedActivity) Record(_ context.Context, entry shared.ActivityEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func TestClientCreateAssignsReference(t *testing.T) {
	repo := newFakeClientRepo()
	activity := &recordedActivity{}
	svc := NewService(repo, nil, activity)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }

	client, err := svc.Create(context.Background(), CreateClientRequest{Name: "Amina B."}, 7)
	require.NoError(t, err)
	assert.Equal(t, "CLI-20250314-0001", client.Reference)
	assert.True(t, client.IsActive)
	assert.Equal(t, int64(7), client.CreatedBy)

	second, err := svc.Create(context.Background(), CreateClientRequest{Name: "Karim Z."}, 7)
	require.NoError(t, err)
	assert.Equal(t, "CLI-20250314-0002", second.Reference)

	require.Len(t, activity.entries, 2)
	assert.Equal(t, "CREATE", activity.entries[0].Action)
	assert.Equal(t, "client", activity.entries[0].Entity)
}

func TestClientCreatePropagatesInsertError(t *testing.T) {
	repo := newFakeClientRepo()
	repo.insertErr = errors.New("connection reset")
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateClientRequest{Name: "x"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestClientUpdateAppliesOnlyProvidedFields(t *testing.T) {
	repo := newFakeClientRepo()
	svc := NewService(repo, nil, nil)
	created, err := svc.Create(context.Background(), CreateClientRequest{Name: "before"}, 1)
	require.NoError(t, err)

	name := "after"
	updated, err := svc.Update(context.Background(), created.ID, UpdateClientRequest{Name: &name}, 1)
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)

	// No fields means no write.
	same, err := svc.Update(context.Background(), created.ID, UpdateClientRequest{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "after", same.Name)
}

func TestClientUpdateUnknownID(t *testing.T) {
	svc := NewService(newFakeClientRepo(), nil, nil)
	name := "ghost"
	_, err := svc.Update(context.Background(), 404, UpdateClientRequest{Name: &name}, 1)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestClientDeactivate(t *testing.T) {
	repo := newFakeClientRepo()
	activity := &recordedActivity{}
	svc := NewService(repo, nil, activity)
	created, err := svc.Create(context.Background(), CreateClientRequest{Name: "to go"}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), created.ID, 1))
	got, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.Len(t, activity.entries, 2)
	assert.Equal(t, "DELETE", activity.entries[1].Action)
}

func TestClientBalanceFallsBackWithoutCache(t *testing.T) {
	repo := newFakeClientRepo()
	svc := NewService(repo, nil, nil)
	created, err := svc.Create(context.Background(), CreateClientRequest{Name: "cash buyer"}, 1)
	require.NoError(t, err)
	repo.balances[created.ID] = Balance{
		ClientID:    created.ID,
		Invoiced:    decimal.RequireFromString("1200.00"),
		Paid:        decimal.RequireFromString("800.00"),
		Outstanding: decimal.RequireFromString("400.00"),
	}

	bal, err := svc.Balance(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, bal.Outstanding.Equal(decimal.RequireFromString("400.00")))
	assert.Equal(t, 1, repo.balanceHits)
}

func TestClientBalanceUnknownClient(t *testing.T) {
	svc := NewService(newFakeClientRepo(), nil, nil)
	_, err := svc.Balance(context.Background(), 99)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
