// Package cache keeps read-through copies of wallet balances in Redis. The
// ledger stays authoritative: entries expire after a TTL and are deleted
// after every committed mutation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/billwallet/internal/config"
	"github.com/fastprodman/billwallet/internal/metrics"
	"github.com/fastprodman/billwallet/internal/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "billwallet:balance:"

// ErrMiss is returned by Get when no entry exists.
var ErrMiss = errors.New("cache miss")

type BalanceCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewBalanceCache(client redis.UniversalClient, ttl time.Duration, m *metrics.Metrics) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl, metrics: m}
}

func key(ownerID string) string {
	return keyPrefix + ownerID
}

func (c *BalanceCache) Get(ctx context.Context, ownerID string) (models.Balance, error) {
	raw, err := c.client.Get(ctx, key(ownerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.CacheLookup("miss")
			return models.Balance{}, ErrMiss
		}

		c.metrics.CacheLookup("error")

		return models.Balance{}, fmt.Errorf("redis get: %w", err)
	}

	var b models.Balance

	err = json.Unmarshal(raw, &b)
	if err != nil {
		c.metrics.CacheLookup("error")
		return models.Balance{}, fmt.Errorf("decode cached balance: %w", err)
	}

	c.metrics.CacheLookup("hit")

	return b, nil
}

func (c *BalanceCache) Set(ctx context.Context, b models.Balance) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode balance: %w", err)
	}

	err = c.client.Set(ctx, key(b.OwnerID), raw, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (c *BalanceCache) Invalidate(ctx context.Context, ownerIDs ...string) error {
	if len(ownerIDs) == 0 {
		return nil
	}

	keys := make([]string, len(ownerIDs))
	for i, id := range ownerIDs {
		keys[i] = key(id)
	}

	err := c.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func (c *BalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
