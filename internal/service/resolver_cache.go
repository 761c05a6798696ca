package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResolverCache is a short-TTL Redis layer in front of the resolver. It
// caches whole resolved results, provenance included, so a cache hit tells
// the caller the same story the original resolution did.
type ResolverCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResolverCache wraps a Redis client with the given entry TTL.
func NewResolverCache(client *redis.Client, ttl time.Duration) *ResolverCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResolverCache{client: client, ttl: ttl}
}

func invoiceViewKey(id int64) string {
	return fmt.Sprintf("resolve:invoice:%d", id)
}

func poolViewKey(id int64) string {
	return fmt.Sprintf("resolve:pool:%d", id)
}

// GetInvoice returns the cached resolution for an invoice, or nil on miss.
func (c *ResolverCache) GetInvoice(ctx context.Context, id int64) (*ResolvedInvoice, error) {
	data, err := c.client.Get(ctx, invoiceViewKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolver cache get: %w", err)
	}
	var resolved ResolvedInvoice
	if err := json.Unmarshal(data, &resolved); err != nil {
		return nil, fmt.Errorf("resolver cache decode: %w", err)
	}
	return &resolved, nil
}

// PutInvoice stores a resolution under the configured TTL.
func (c *ResolverCache) PutInvoice(ctx context.Context, id int64, resolved *ResolvedInvoice) error {
	data, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("resolver cache encode: %w", err)
	}
	return c.client.Set(ctx, invoiceViewKey(id), data, c.ttl).Err()
}

// GetPool returns the cached resolution for a pool, or nil on miss.
func (c *ResolverCache) GetPool(ctx context.Context, id int64) (*ResolvedPool, error) {
	data, err := c.client.Get(ctx, poolViewKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolver cache get: %w", err)
	}
	var resolved ResolvedPool
	if err := json.Unmarshal(data, &resolved); err != nil {
		return nil, fmt.Errorf("resolver cache decode: %w", err)
	}
	return &resolved, nil
}

// PutPool stores a resolution under the configured TTL.
func (c *ResolverCache) PutPool(ctx context.Context, id int64, resolved *ResolvedPool) error {
	data, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("resolver cache encode: %w", err)
	}
	return c.client.Set(ctx, poolViewKey(id), data, c.ttl).Err()
}

// Invalidate drops the cached resolutions for one invoice and one pool id.
// Used after a heal rewrites cache rows.
func (c *ResolverCache) Invalidate(ctx context.Context, invoiceIDs, poolIDs []int64) error {
	keys := make([]string, 0, len(invoiceIDs)+len(poolIDs))
	for _, id := range invoiceIDs {
		keys = append(keys, invoiceViewKey(id))
	}
	for _, id := range poolIDs {
		keys = append(keys, poolViewKey(id))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
