package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateNotCached is returned when no fresh rate exists for a pair.
var ErrRateNotCached = errors.New("fx rate not cached")

// FxRateCache holds recently fetched currency conversion rates in Redis so
// amount presentation does not hit the upstream rate provider on every read.
// Rates expire on TTL; stale entries are simply absent.
type FxRateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFxRateCache wraps a Redis client with the given rate TTL.
func NewFxRateCache(client *redis.Client, ttl time.Duration) *FxRateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &FxRateCache{client: client, ttl: ttl}
}

func fxKey(base, quote string) string {
	return fmt.Sprintf("fx:%s:%s", strings.ToUpper(base), strings.ToUpper(quote))
}

// Get returns the cached rate for a currency pair, or ErrRateNotCached.
func (c *FxRateCache) Get(ctx context.Context, base, quote string) (float64, error) {
	val, err := c.client.Get(ctx, fxKey(base, quote)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrRateNotCached
		}
		return 0, fmt.Errorf("fx cache get: %w", err)
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("fx cache decode %q: %w", val, err)
	}
	return rate, nil
}

// Put stores a rate under the configured TTL. Non-positive rates are
// rejected; an upstream returning zero is a provider fault, not a rate.
func (c *FxRateCache) Put(ctx context.Context, base, quote string, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("invalid fx rate %f for %s/%s", rate, base, quote)
	}
	val := strconv.FormatFloat(rate, 'f', -1, 64)
	return c.client.Set(ctx, fxKey(base, quote), val, c.ttl).Err()
}
