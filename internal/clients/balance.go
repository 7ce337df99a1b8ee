package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceCache keeps computed client balances in Redis for a bounded
// window. Write paths evict the affected key before returning so a read
// immediately after a mutation sees the fresh value.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache instantiates the cache helper.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(clientID int64) string {
	return fmt.Sprintf("clients:balance:%d", clientID)
}

// Fetch loads a cached balance or populates it using the loader.
func (c *BalanceCache) Fetch(ctx context.Context, clientID int64, loader func(context.Context) (Balance, error)) (Balance, error) {
	if loader == nil {
		return Balance{}, errors.New("clients: balance loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key := balanceKey(clientID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached Balance
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
		// Corrupt entry: drop it and fall through to the loader.
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		return Balance{}, err
	}

	value, err := loader(ctx)
	if err != nil {
		return Balance{}, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Balance{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Balance{}, err
	}
	return value, nil
}

// Invalidate evicts the cached balance for a client.
func (c *BalanceCache) Invalidate(ctx context.Context, clientID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, balanceKey(clientID)).Err()
}
