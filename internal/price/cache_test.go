package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type countingSource struct {
	price float64
	err   error
	calls int
}

func (s *countingSource) GetPrice(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func newCached(t *testing.T, src Source, cache Cache, ttl time.Duration) *CachedFetcher {
	t.Helper()
	log, _ := test.NewNullLogger()
	c := NewCachedFetcher(src, cache, "USD", ttl, log)
	c.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return c
}

// ---------------------------------------------------------------------------
// MemoryCache
// ---------------------------------------------------------------------------

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", Quote{Price: 1}, time.Minute))
	q, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.0, q.Price, 0)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// RedisCache
// ---------------------------------------------------------------------------

func TestRedisCacheRoundTripAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, ok, err := c.Get(ctx, "w3deploy:price:usd:base")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "w3deploy:price:usd:base", Quote{Chain: "base", Price: 2500}, 30*time.Second))
	q, ok, err := c.Get(ctx, "w3deploy:price:usd:base")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "base", q.Chain)
	assert.Equal(t, 30*time.Second, mr.TTL("w3deploy:price:usd:base"))

	mr.FastForward(31 * time.Second)
	_, ok, err = c.Get(ctx, "w3deploy:price:usd:base")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// CachedFetcher
// ---------------------------------------------------------------------------

func TestCachedFetcherServesFromCache(t *testing.T) {
	src := &countingSource{price: 3000}
	c := newCached(t, src, NewMemoryCache(), time.Minute)

	first, err := c.Quote(ctx, "Base")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "base", first.Chain)
	assert.Equal(t, "usd", first.Currency)
	assert.Equal(t, int64(1_700_000_000_000), first.FetchedAt)

	second, err := c.Quote(ctx, "base")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.InDelta(t, 3000.0, second.Price, 0)
	assert.Equal(t, 1, src.calls)
}

func TestCachedFetcherZeroTTLAlwaysFetches(t *testing.T) {
	src := &countingSource{price: 1}
	c := newCached(t, src, NewMemoryCache(), 0)

	for range 3 {
		_, err := c.Quote(ctx, "base")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.calls)
}

func TestCachedFetcherSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("rate limited")}
	c := newCached(t, src, NewMemoryCache(), time.Minute)

	_, err := c.Quote(ctx, "base")
	require.ErrorContains(t, err, "rate limited")

	src.err, src.price = nil, 10
	q, err := c.Quote(ctx, "base")
	require.NoError(t, err)
	assert.False(t, q.Cached, "failures are not cached")
}

func TestCachedFetcherWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	src := &countingSource{price: 42}
	c := newCached(t, src, NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()})), time.Minute)

	_, err := c.Quote(ctx, "optimism")
	require.NoError(t, err)
	assert.True(t, mr.Exists("w3deploy:price:usd:optimism"))

	q, err := c.Quote(ctx, "optimism")
	require.NoError(t, err)
	assert.True(t, q.Cached)
	assert.Equal(t, 1, src.calls)
}
