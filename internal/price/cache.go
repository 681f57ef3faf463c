package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3deploy/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Quote is a price answer as served to callers.
type Quote struct {
	Chain     string  `json:"chain"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	FetchedAt int64   `json:"fetchedAt"`
	Cached    bool    `json:"cached"`
}

// Cache stores quotes for a bounded time.
type Cache interface {
	Get(ctx context.Context, key string) (Quote, bool, error)
	Set(ctx context.Context, key string, q Quote, ttl time.Duration) error
}

// Source is anything that can price a chain's native token.
type Source interface {
	GetPrice(ctx context.Context, chainName string) (float64, error)
}

// ---------------------------------------------------------------------------
// MemoryCache
// ---------------------------------------------------------------------------

type memEntry struct {
	q       Quote
	expires time.Time
}

// MemoryCache is an in-process Cache. Expired entries are dropped on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Quote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Quote{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return Quote{}, false, nil
	}
	return e.q, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, q Quote, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memEntry{q: q, expires: c.now().Add(ttl)}
	return nil
}

// ---------------------------------------------------------------------------
// RedisCache
// ---------------------------------------------------------------------------

// RedisCache keeps quotes as JSON strings with a redis TTL.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Quote, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, false, fmt.Errorf("decoding cached quote %s: %w", key, err)
	}
	return q, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, q Quote, ttl time.Duration) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// ---------------------------------------------------------------------------
// CachedFetcher
// ---------------------------------------------------------------------------

// CachedFetcher answers from the cache while a quote is fresh and falls back
// to the source otherwise. A zero TTL disables caching.
type CachedFetcher struct {
	src      Source
	cache    Cache
	ttl      time.Duration
	currency string
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewCachedFetcher(src Source, cache Cache, currency string, ttl time.Duration, log logrus.FieldLogger) *CachedFetcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedFetcher{
		src:      src,
		cache:    cache,
		ttl:      ttl,
		currency: strings.ToLower(currency),
		now:      time.Now,
		log:      log,
	}
}

func (c *CachedFetcher) key(chainName string) string {
	return "w3deploy:price:" + c.currency + ":" + strings.ToLower(chainName)
}

// Quote returns the current price for chainName.
func (c *CachedFetcher) Quote(ctx context.Context, chainName string) (Quote, error) {
	key := c.key(chainName)
	if c.ttl > 0 {
		q, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.WithError(err).WithField("key", key).Warn("price cache read failed")
		}
		if ok {
			metrics.PriceCache.WithLabelValues("hit").Inc()
			q.Cached = true
			return q, nil
		}
	}
	metrics.PriceCache.WithLabelValues("miss").Inc()

	p, err := c.src.GetPrice(ctx, chainName)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		Chain:     strings.ToLower(chainName),
		Currency:  c.currency,
		Price:     p,
		FetchedAt: c.now().UnixMilli(),
	}
	if c.ttl > 0 {
		if err := c.cache.Set(ctx, key, q, c.ttl); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("price cache write failed")
		}
	}
	return q, nil
}
