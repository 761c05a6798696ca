package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/types"
)

func setupResolverCache(t *testing.T) (*ResolverCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewResolverCache(client, 30*time.Second), mr
}

func TestResolverCacheRoundTrip(t *testing.T) {
	cache, _ := setupResolverCache(t)
	ctx := context.Background()

	resolved := &ResolvedInvoice{
		Invoice:    &models.InvoiceView{TokenID: 7, Status: types.InvoiceFunded, AmountInvested: "250000"},
		Source:     types.SourceHybrid,
		Warnings:   []string{"example"},
		ResolvedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.PutInvoice(ctx, 7, resolved))

	got, err := cache.GetInvoice(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.SourceHybrid, got.Source)
	assert.Equal(t, int64(7), got.Invoice.TokenID)
	assert.Equal(t, resolved.Warnings, got.Warnings)
}

func TestResolverCacheMissReturnsNil(t *testing.T) {
	cache, _ := setupResolverCache(t)

	got, err := cache.GetInvoice(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolverCacheExpiry(t *testing.T) {
	cache, mr := setupResolverCache(t)
	ctx := context.Background()

	require.NoError(t, cache.PutInvoice(ctx, 7, &ResolvedInvoice{
		Invoice: &models.InvoiceView{TokenID: 7},
		Source:  types.SourceContract,
	}))
	mr.FastForward(time.Minute)

	got, err := cache.GetInvoice(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolverCacheInvalidate(t *testing.T) {
	cache, _ := setupResolverCache(t)
	ctx := context.Background()

	require.NoError(t, cache.PutInvoice(ctx, 1, &ResolvedInvoice{
		Invoice: &models.InvoiceView{TokenID: 1}, Source: types.SourceContract,
	}))
	require.NoError(t, cache.PutPool(ctx, 2, &ResolvedPool{
		Pool: &models.PoolView{PoolID: 2}, Source: types.SourceContract,
	}))

	require.NoError(t, cache.Invalidate(ctx, []int64{1}, []int64{2}))

	gotInvoice, err := cache.GetInvoice(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, gotInvoice)

	gotPool, err := cache.GetPool(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, gotPool)
}

// The resolver read-through serves a cached resolution instead of repeating
// ledger work, provenance intact.
func TestResolverReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	viewCache := NewResolverCache(client, 30*time.Second)

	l := newFakeLedger()
	l.addInvoice(1, types.InvoiceFunded, 250000)
	resolver := NewResolver(l, newFakeInvoiceStore(), newFakePoolStore(), viewCache)

	first := resolver.ResolveInvoice(context.Background(), 1)
	require.Equal(t, types.SourceContract, first.Source)
	callsAfterFirst := l.calls

	second := resolver.ResolveInvoice(context.Background(), 1)
	assert.Equal(t, types.SourceContract, second.Source)
	assert.Equal(t, callsAfterFirst, l.calls, "second resolution must be served from cache")
}
