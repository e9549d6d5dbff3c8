package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

// Cached model names; each owns the key prefix proc:cache:<model>:.
const (
	ModelCategories = "categories"
	ModelShops      = "shops"
	ModelListings   = "listings"
)

// CachedModels lists every model the catalog caches.
var CachedModels = []string{ModelCategories, ModelShops, ModelListings}

// Invalidator drops cached catalog reads.
type Invalidator interface {
	Invalidate(ctx context.Context, models ...string) (int, error)
}

// Cache stores JSON encoded catalog reads in Redis.
type Cache struct {
	store redis.CacheStore
	ttls  map[string]time.Duration
	logg  *logger.Logger
}

func NewCache(store redis.CacheStore, cfg config.CacheConfig, logg *logger.Logger) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Cache{
		store: store,
		ttls: map[string]time.Duration{
			ModelCategories: cfg.CategoryTTL,
			ModelShops:      cfg.ShopTTL,
			ModelListings:   cfg.ListingTTL,
		},
		logg: logg,
	}, nil
}

// Key hashes query into the model's namespace.
func (c *Cache) Key(model string, query any) string {
	raw, _ := json.Marshal(query)
	sum := sha256.Sum256(raw)
	return c.store.CacheKey(model, hex.EncodeToString(sum[:16]))
}

// Invalidate removes all cached entries of the given models, or of every
// catalog model when none are named.
func (c *Cache) Invalidate(ctx context.Context, models ...string) (int, error) {
	if len(models) == 0 {
		models = CachedModels
	}
	total := 0
	for _, model := range models {
		n, err := c.store.DeleteByPrefix(ctx, c.store.CacheKey(model, ""))
		total += n
		if err != nil {
			return total, fmt.Errorf("invalidate %s: %w", model, err)
		}
	}
	return total, nil
}

// readThrough serves model/query from Redis and falls back to load on a
// miss. Redis failures degrade to load and are only logged.
func readThrough[T any](ctx context.Context, c *Cache, model string, query any, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}
	key := c.Key(model, query)
	logCtx := c.logg.WithFields(ctx, map[string]any{"cache_model": model, "cache_key": key})

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached T
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached, nil
		}
		c.logg.Warn(logCtx, "catalog.cache.corrupt")
	case !errors.Is(err, goredis.Nil):
		c.logg.Error(logCtx, "catalog.cache.get_failed", err)
	}

	value, err := load()
	if err != nil {
		return value, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := c.store.Set(ctx, key, string(payload), c.ttls[model]); err != nil {
		c.logg.Error(logCtx, "catalog.cache.set_failed", err)
	}
	return value, nil
}
