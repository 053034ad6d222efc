package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
	lru "github.com/hashicorp/golang-lru"
)

const categoriesKey = "categories"

// Loader reads activity categories from the store
type Loader interface {
	ListCategories(ctx context.Context) ([]string, error)
	ListActivitiesByCategory(ctx context.Context, category string) ([]domain.ActivitySummary, error)
}

// Cache holds the category list and per-category activity listings.
// Entries expire after the configured TTL or on Invalidate.
type Cache struct {
	loader Loader
	cache  *lru.Cache
	ttl    time.Duration
	clock  func() time.Time
	logger *slog.Logger
}

type cachedEntry struct {
	value     any
	timestamp time.Time
}

// NewCache creates a new category cache
func NewCache(loader Loader, cfg *config.CategoriesConfig, logger *slog.Logger) (*Cache, error) {
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating category cache: %w", err)
	}
	return &Cache{
		loader: loader,
		cache:  cache,
		ttl:    cfg.TTL,
		clock:  time.Now,
		logger: logger,
	}, nil
}

// Categories returns every activity category in alphabetical order
func (c *Cache) Categories(ctx context.Context) ([]string, error) {
	if v, ok := c.get(categoriesKey); ok {
		return v.([]string), nil
	}

	categories, err := c.loader.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	c.cache.Add(categoriesKey, cachedEntry{value: categories, timestamp: c.clock()})
	return categories, nil
}

// Activities returns the activities tagged with category
func (c *Cache) Activities(ctx context.Context, category string) ([]domain.ActivitySummary, error) {
	key := "category:" + category
	if v, ok := c.get(key); ok {
		return v.([]domain.ActivitySummary), nil
	}

	activities, err := c.loader.ListActivitiesByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("loading activities of category %q: %w", category, err)
	}
	c.cache.Add(key, cachedEntry{value: activities, timestamp: c.clock()})
	return activities, nil
}

// Invalidate drops every cached entry
func (c *Cache) Invalidate() {
	c.cache.Purge()
	c.logger.Info("category cache invalidated")
}

func (c *Cache) get(key string) (any, bool) {
	raw, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := raw.(cachedEntry)
	if c.ttl > 0 && c.clock().Sub(entry.timestamp) > c.ttl {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}
