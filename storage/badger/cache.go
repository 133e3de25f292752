package badger

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/storage"
)

// errStopScan ends a scan early when the consumer stops ranging.
var errStopScan = errors.New("scan stopped")

// ResultCache implements storage.ResultStore for BadgerDB.
// Entries are written without a badger TTL: expiry is tracked in the value so
// that stale entries stay readable until CleanupExpired removes them.
type ResultCache struct {
	backend *Backend
	now     func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	writes    atomic.Uint64
	deletes   atomic.Uint64
	evictions atomic.Uint64
}

var _ storage.ResultStore = (*ResultCache)(nil)

// ResultCacheOption configures a ResultCache.
type ResultCacheOption func(*ResultCache)

// WithCacheClock sets the time source used to decide expiry.
// Default is time.Now.
func WithCacheClock(now func() time.Time) ResultCacheOption {
	return func(c *ResultCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewResultCache creates a new ResultCache.
func NewResultCache(backend *Backend, opts ...ResultCacheOption) *ResultCache {
	c := &ResultCache{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get reads an entry regardless of expiry. Returns nil, nil if absent.
func (c *ResultCache) get(key string) (*core.CacheEntry, error) {
	var entry *core.CacheEntry
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeResultKey(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			entry, unmarshalErr = storage.UnmarshalCacheEntry(val)
			return unmarshalErr
		})
	}, false)
	return entry, err
}

// GetFresh retrieves an unexpired entry. Expired entries read as absent and are left in place.
func (c *ResultCache) GetFresh(ctx context.Context, key string) (*core.CacheEntry, error) {
	entry, err := c.get(key)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.IsExpired(c.now()) {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return entry, nil
}

// GetIncludeStale retrieves an entry regardless of expiry.
func (c *ResultCache) GetIncludeStale(ctx context.Context, key string) (*core.CacheEntry, bool, error) {
	entry, err := c.get(key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return entry, entry.IsExpired(c.now()), nil
}

// Put stores an entry, replacing any previous value under the same key.
func (c *ResultCache) Put(ctx context.Context, entry *core.CacheEntry) error {
	err := c.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeResultKey(entry.Key), storage.MarshalCacheEntry(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	c.writes.Add(1)
	return nil
}

// Delete removes entries by cache key. Missing keys are ignored.
func (c *ResultCache) Delete(ctx context.Context, keys ...string) error {
	raw := make([][]byte, 0, len(keys))
	for _, key := range keys {
		raw = append(raw, makeResultKey(key))
	}
	if err := c.backend.DeleteKeys(raw); err != nil {
		return err
	}
	c.deletes.Add(uint64(len(keys)))
	return nil
}

// ScanMatching iterates every stored entry accepted by match, fresh or stale.
func (c *ResultCache) ScanMatching(ctx context.Context, match func(*core.CacheEntry) bool) iter.Seq2[*core.CacheEntry, error] {
	return func(yield func(*core.CacheEntry, error) bool) {
		err := c.backend.scanPrefix([]byte(resultPrefix), func(key, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := storage.UnmarshalCacheEntry(val)
			if err != nil {
				c.backend.logger.Warn("skipping unreadable cache entry", "key", cacheKeyFromResultKey(key), "err", err)
				return nil
			}
			if match != nil && !match(entry) {
				return nil
			}
			if !yield(entry, nil) {
				return errStopScan
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopScan) {
			yield(nil, err)
		}
	}
}

// CleanupExpired removes every expired entry and returns the removed cache keys.
func (c *ResultCache) CleanupExpired(ctx context.Context) ([]string, error) {
	now := c.now()
	var expired []string
	var rawKeys [][]byte

	err := c.backend.scanPrefix([]byte(resultPrefix), func(key, val []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := storage.UnmarshalCacheEntry(val)
		if err != nil {
			c.backend.logger.Warn("skipping unreadable cache entry", "key", cacheKeyFromResultKey(key), "err", err)
			return nil
		}
		if entry.IsExpired(now) {
			expired = append(expired, cacheKeyFromResultKey(key))
			rawKeys = append(rawKeys, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.backend.DeleteKeys(rawKeys); err != nil {
		return nil, err
	}
	c.evictions.Add(uint64(len(expired)))
	return expired, nil
}

// Stats returns activity counters since the cache was created.
func (c *ResultCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Writes:    c.writes.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
	}
}
