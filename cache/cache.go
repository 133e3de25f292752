package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/fathom/ai"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/storage"
)

const (
	// DefaultTTL is how long a stored result list stays fresh.
	DefaultTTL = time.Hour

	// DefaultSimilarityThreshold is the minimum cosine similarity for a semantic hit.
	DefaultSimilarityThreshold float32 = 0.92

	// semanticCandidates is how many similar queries are tried per lookup.
	semanticCandidates = 3
)

// Cache is the result cache facade used by search.
//
// Fresh lookups serve unexpired entries. Full-text lookups also reach stale
// entries, which stay in the store until CleanupExpired removes them.
type Cache struct {
	store      storage.ResultStore
	index      storage.QueryIndex
	embedder   ai.Embedder
	threshold  float32
	defaultTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache) error

// WithDefaultTTL sets the TTL used when Store is called without one.
// Default is one hour.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) error {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "cache")
		return nil
	}
}

// WithClock sets the time source for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}

// WithSemanticIndex enables semantic lookups: an exact miss is retried
// against stored queries whose embedding is at least threshold similar.
// A zero threshold uses DefaultSimilarityThreshold.
func WithSemanticIndex(index storage.QueryIndex, embedder ai.Embedder, threshold float32) Option {
	return func(c *Cache) error {
		if index == nil {
			return nil
		}
		if embedder == nil {
			return ErrEmbedderRequired
		}
		if threshold == 0 {
			threshold = DefaultSimilarityThreshold
		}
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%w: %w: similarity %v", core.ErrConfig, core.ErrInvalidThreshold, threshold)
		}
		c.index = index
		c.embedder = embedder
		c.threshold = threshold
		return nil
	}
}

// New creates a cache facade over store.
func New(store storage.ResultStore, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	c := &Cache{
		store:      store,
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     slog.Default().With("component", "cache"),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// DefaultTTL returns the TTL applied when Store is given none.
func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// LookupFresh returns the unexpired items stored for query and engine.
// An expired entry is a miss and stays in the store.
func (c *Cache) LookupFresh(ctx context.Context, query core.SearchQuery, engine string) ([]core.ResultItem, bool, error) {
	entry, err := c.store.GetFresh(ctx, core.CacheKey(query, engine))
	if err != nil {
		return nil, false, mapStoreError(err)
	}
	if entry != nil {
		return entry.Items, true, nil
	}

	if c.index == nil {
		return nil, false, nil
	}
	return c.lookupSimilar(ctx, query, engine)
}

// lookupSimilar serves the closest fresh entry stored under a differently
// worded query. Embedding failures degrade to a miss.
func (c *Cache) lookupSimilar(ctx context.Context, query core.SearchQuery, engine string) ([]core.ResultItem, bool, error) {
	vector, err := c.embedder.EmbedText(ctx, query.Query)
	if err != nil {
		c.logger.Warn("query embedding failed, skipping semantic lookup", "err", err)
		return nil, false, nil
	}
	if len(vector) == 0 {
		return nil, false, nil
	}

	matches, err := c.index.FindSimilarQueries(ctx, scope(query, engine), vector, c.threshold, semanticCandidates)
	if err != nil {
		return nil, false, mapStoreError(err)
	}

	for _, match := range matches {
		entry, err := c.store.GetFresh(ctx, match.Key)
		if err != nil {
			return nil, false, mapStoreError(err)
		}
		if entry != nil {
			c.logger.Debug("semantic cache hit",
				"query", query.Query,
				"matched", match.Query,
				"similarity", match.Score,
				"engine", engine)
			return entry.Items, true, nil
		}
	}
	return nil, false, nil
}

// LookupAny returns items from every stored entry, fresh or stale, whose
// title, content or URL contains any of the keywords (case-insensitive).
// Items come back in store scan order.
func (c *Cache) LookupAny(ctx context.Context, keywords []string) ([]core.ResultItem, error) {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	var items []core.ResultItem
	for entry, err := range c.store.ScanMatching(ctx, func(e *core.CacheEntry) bool {
		for i := range e.Items {
			if itemMatches(&e.Items[i], lowered) {
				return true
			}
		}
		return false
	}) {
		if err != nil {
			return nil, mapStoreError(err)
		}
		for i := range entry.Items {
			if itemMatches(&entry.Items[i], lowered) {
				items = append(items, entry.Items[i])
			}
		}
	}
	return items, nil
}

func itemMatches(item *core.ResultItem, keywords []string) bool {
	title := strings.ToLower(item.Title)
	content := strings.ToLower(item.Content)
	url := strings.ToLower(item.URL)
	for _, kw := range keywords {
		if strings.Contains(title, kw) || strings.Contains(content, kw) || strings.Contains(url, kw) {
			return true
		}
	}
	return false
}

// Store saves items for query and engine. A ttl <= 0 uses the default TTL.
// With a semantic index configured the query embedding is stored as well;
// failing to embed only skips that step.
func (c *Cache) Store(ctx context.Context, query core.SearchQuery, engine string, items []core.ResultItem, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now().UTC()
	entry := &core.CacheEntry{
		Key:       core.CacheKey(query, engine),
		Query:     query.Query,
		Engine:    engine,
		Items:     items,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if err := c.store.Put(ctx, entry); err != nil {
		return mapStoreError(err)
	}

	if c.index == nil {
		return nil
	}
	vector, err := c.embedder.EmbedText(ctx, query.Query)
	if err != nil {
		c.logger.Warn("query embedding failed, entry stored without vector", "key", entry.Key, "err", err)
		return nil
	}
	err = c.index.PutQueryVector(ctx, &core.QueryVector{
		Key:    entry.Key,
		Query:  query.Query,
		Scope:  scope(query, engine),
		Vector: vector,
	})
	return mapStoreError(err)
}

// Invalidate removes the entry stored for query and engine.
func (c *Cache) Invalidate(ctx context.Context, query core.SearchQuery, engine string) error {
	key := core.CacheKey(query, engine)
	if err := c.store.Delete(ctx, key); err != nil {
		return mapStoreError(err)
	}
	if c.index != nil {
		return mapStoreError(c.index.DeleteQueryVectors(ctx, key))
	}
	return nil
}

// CleanupExpired removes expired entries and their query vectors, returning
// how many entries were removed. Nothing else ever deletes expired entries.
func (c *Cache) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := c.store.CleanupExpired(ctx)
	if err != nil {
		return 0, mapStoreError(err)
	}
	if c.index != nil && len(keys) > 0 {
		if err := c.index.DeleteQueryVectors(ctx, keys...); err != nil {
			return len(keys), mapStoreError(err)
		}
	}
	if len(keys) > 0 {
		c.logger.Info("removed expired cache entries", "count", len(keys))
	}
	return len(keys), nil
}

// Stats returns the store's activity counters.
func (c *Cache) Stats() core.CacheStats {
	return c.store.Stats()
}

// scope limits semantic matches to entries that answer the same engine,
// page and locale as query.
func scope(query core.SearchQuery, engine string) string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", engine, query.Page, query.PageSize, query.Language, query.Region)
}

// mapStoreError reports an inaccessible store as core.ErrCacheUnavailable.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrStorageClosed) {
		return fmt.Errorf("%w: %w", core.ErrCacheUnavailable, err)
	}
	return err
}
