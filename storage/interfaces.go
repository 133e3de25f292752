package storage

import (
	"context"
	"iter"

	"github.com/poiesic/fathom/core"
)

// ResultStore persists engine result lists keyed by core.CacheKey.
// Expired entries are retained until CleanupExpired is called.
// Implementations must be thread-safe and support concurrent access.
type ResultStore interface {
	// GetFresh retrieves an unexpired entry.
	// Returns nil, nil when the key is absent or the entry has expired.
	// Expired entries are never deleted by reads.
	GetFresh(ctx context.Context, key string) (*core.CacheEntry, error)

	// GetIncludeStale retrieves an entry regardless of expiry.
	// stale reports whether the entry's TTL has elapsed.
	// Returns nil, false, nil when the key is absent.
	GetIncludeStale(ctx context.Context, key string) (entry *core.CacheEntry, stale bool, err error)

	// Put stores an entry under entry.Key, replacing any previous value.
	// Concurrent writes to the same key are last-write-wins.
	Put(ctx context.Context, entry *core.CacheEntry) error

	// Delete removes entries by key. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// ScanMatching iterates every stored entry, fresh or stale, for which match returns true.
	// A storage error is yielded as the final element.
	ScanMatching(ctx context.Context, match func(*core.CacheEntry) bool) iter.Seq2[*core.CacheEntry, error]

	// CleanupExpired removes every expired entry and returns the removed keys.
	CleanupExpired(ctx context.Context) ([]string, error)

	// Stats returns activity counters since the store was opened.
	Stats() core.CacheStats
}

// FeedStore holds RSS items fetched by an external fetcher.
type FeedStore interface {
	// Items returns the stored items of the given feeds, or of all feeds when feedURLs is empty.
	Items(ctx context.Context, feedURLs []string) ([]core.FeedItem, error)

	// AddItems stores feed items. Items are deduplicated per feed by GUID,
	// or by link when the GUID is empty; a later item replaces an earlier one.
	AddItems(ctx context.Context, items ...core.FeedItem) error
}

// QueryIndex stores query embeddings for semantic cache lookups.
type QueryIndex interface {
	// PutQueryVector stores the embedding of a cached query under vector.Key.
	PutQueryVector(ctx context.Context, vector *core.QueryVector) error

	// FindSimilarQueries returns the cache keys of stored queries in scope whose
	// dot-product similarity to vector is >= minSimilarity, best first, up to limit results.
	FindSimilarQueries(ctx context.Context, scope string, vector []float32, minSimilarity float32, limit int) ([]core.QueryMatch, error)

	// DeleteQueryVectors removes the vectors stored under the given cache keys.
	DeleteQueryVectors(ctx context.Context, keys ...string) error

	// QueryVectors returns every stored query vector in key order.
	QueryVectors(ctx context.Context) ([]core.QueryVector, error)
}
