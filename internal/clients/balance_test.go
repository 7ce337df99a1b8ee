package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*BalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBalanceCache(client, time.Hour), mr
}

func sampleBalance(id int64) Balance {
	return Balance{
		ClientID:    id,
		Invoiced:    decimal.RequireFromString("2500.00"),
		Paid:        decimal.RequireFromString("1000.00"),
		Outstanding: decimal.RequireFromString("1500.00"),
	}
}

func TestBalanceCacheLoadsOnceWithinTTL(t *testing.T) {
	cache, _ := newTestCache(t)
	loads := 0
	loader := func(context.Context) (Balance, error) {
		loads++
		return sampleBalance(5), nil
	}

	first, err := cache.Fetch(context.Background(), 5, loader)
	require.NoError(t, err)
	second, err := cache.Fetch(context.Background(), 5, loader)
	require.NoError(t, err)

	assert.Equal(t, 1, loads)
	assert.True(t, first.Outstanding.Equal(second.Outstanding))
}

func TestBalanceCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	loads := 0
	loader := func(context.Context) (Balance, error) {
		loads++
		return sampleBalance(5), nil
	}

	_, err := cache.Fetch(context.Background(), 5, loader)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = cache.Fetch(context.Background(), 5, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestBalanceCacheInvalidateForcesReload(t *testing.T) {
	cache, _ := newTestCache(t)
	loads := 0
	loader := func(context.Context) (Balance, error) {
		loads++
		return sampleBalance(9), nil
	}

	_, err := cache.Fetch(context.Background(), 9, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background(), 9))
	_, err = cache.Fetch(context.Background(), 9, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestBalanceCacheCorruptEntryDropsAndReloads(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set(balanceKey(3), "{not-json"))

	bal, err := cache.Fetch(context.Background(), 3, func(context.Context) (Balance, error) {
		return sampleBalance(3), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), bal.ClientID)
}

func TestBalanceCacheLoaderError(t *testing.T) {
	cache, _ := newTestCache(t)
	boom := errors.New("aggregate query failed")
	_, err := cache.Fetch(context.Background(), 4, func(context.Context) (Balance, error) {
		return Balance{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestBalanceCacheNilSafe(t *testing.T) {
	var cache *BalanceCache
	bal, err := cache.Fetch(context.Background(), 1, func(context.Context) (Balance, error) {
		return sampleBalance(1), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.ClientID)
	assert.NoError(t, cache.Invalidate(context.Background(), 1))
}
