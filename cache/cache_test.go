package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/fathom/ai"
	"github.com/poiesic/fathom/ai/mock"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	cache   *Cache
	clock   *fakeClock
	index   *badger.QueryIndex
	backend *badger.Backend
}

func newFixture(t *testing.T, opts ...func(*badger.QueryIndex) Option) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	results, _, index, backend, err := badger.NewMemoryStores(badger.WithCacheClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	cacheOpts := []Option{WithClock(clock.Now)}
	for _, o := range opts {
		cacheOpts = append(cacheOpts, o(index))
	}
	c, err := New(results, cacheOpts...)
	require.NoError(t, err)
	return &fixture{cache: c, clock: clock, index: index, backend: backend}
}

func results(urls ...string) []core.ResultItem {
	items := make([]core.ResultItem, 0, len(urls))
	for _, u := range urls {
		items = append(items, core.ResultItem{Title: "Page " + u, URL: u, Content: "about " + u, Score: 0.5})
	}
	return items
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Equal(t, ErrStoreRequired, err)

	store, _, index, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	_, err = New(store, WithSemanticIndex(index, nil, 0.9))
	assert.Equal(t, ErrEmbedderRequired, err)

	_, err = New(store, WithSemanticIndex(index, mock.NewMockEmbedder(), 1.5))
	assert.ErrorIs(t, err, core.ErrInvalidThreshold)

	c, err := New(store, WithSemanticIndex(index, mock.NewMockEmbedder(), 0), WithLogger(nil), WithDefaultTTL(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, DefaultSimilarityThreshold, c.threshold)
	assert.Equal(t, time.Minute, c.DefaultTTL())

	c, err = New(store, WithSemanticIndex(nil, nil, 0))
	require.NoError(t, err)
	assert.Nil(t, c.index, "a nil index leaves semantic lookups off")
}

func TestLookupFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := core.NewSearchQuery("golang channels")

	_, ok, err := f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.cache.Store(ctx, q, "google", results("https://go.dev/ref"), 10*time.Minute))

	items, ok, err := f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, results("https://go.dev/ref"), items)

	t.Run("key includes engine and page", func(t *testing.T) {
		_, ok, err := f.cache.LookupFresh(ctx, q, "bing")
		require.NoError(t, err)
		assert.False(t, ok)

		page2 := q
		page2.Page = 2
		_, ok, err = f.cache.LookupFresh(ctx, page2, "google")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired entry is a miss", func(t *testing.T) {
		f.clock.Advance(10 * time.Minute)
		_, ok, err := f.cache.LookupFresh(ctx, q, "google")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_DefaultTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := core.NewSearchQuery("rust")

	require.NoError(t, f.cache.Store(ctx, q, "google", results("https://rust-lang.org"), 0))

	f.clock.Advance(DefaultTTL - time.Second)
	_, ok, err := f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, err)
	assert.True(t, ok)

	f.clock.Advance(time.Second)
	_, ok, err = f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := core.NewSearchQuery("rust")

	require.NoError(t, f.cache.Store(ctx, q, "google", results("https://old.example"), time.Hour))
	require.NoError(t, f.cache.Store(ctx, q, "google", results("https://new.example"), time.Hour))

	items, ok, err := f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://new.example", items[0].URL)
}

func TestLookupAny_StaleRetentionAndCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.cache.Store(ctx, core.NewSearchQuery("ai"), "google", []core.ResultItem{
		{Title: "AI safety", URL: "https://a.example", Score: 0.9},
		{Title: "Cooking", URL: "https://cook.example", Content: "recipes"},
	}, time.Minute))
	require.NoError(t, f.cache.Store(ctx, core.NewSearchQuery("robots"), "bing", []core.ResultItem{
		{Title: "Robots", URL: "https://robots.example/ai-lab"},
	}, time.Hour))

	f.clock.Advance(2 * time.Minute)

	_, ok, err := f.cache.LookupFresh(ctx, core.NewSearchQuery("ai"), "google")
	require.NoError(t, err)
	assert.False(t, ok)

	items, err := f.cache.LookupAny(ctx, []string{"AI"})
	require.NoError(t, err)
	urls := make([]string, 0, len(items))
	for _, it := range items {
		urls = append(urls, it.URL)
	}
	assert.ElementsMatch(t, []string{"https://a.example", "https://robots.example/ai-lab"}, urls,
		"stale entries match; url matches count")

	removed, err := f.cache.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	items, err = f.cache.LookupAny(ctx, []string{"ai"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://robots.example/ai-lab", items[0].URL)

	removed, err = f.cache.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	assert.Equal(t, uint64(1), f.cache.Stats().Evictions)
}

func TestLookupAny_NoKeywords(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.Store(context.Background(), core.NewSearchQuery("x"), "google", results("https://x.example"), 0))

	items, err := f.cache.LookupAny(context.Background(), []string{"", "  "})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := core.NewSearchQuery("zig")

	require.NoError(t, f.cache.Store(ctx, q, "google", results("https://ziglang.org"), 0))
	require.NoError(t, f.cache.Invalidate(ctx, q, "google"))

	_, ok, err := f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := core.NewSearchQuery("stats")

	_, _, _ = f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, f.cache.Store(ctx, q, "google", results("https://s.example"), 0))
	_, _, _ = f.cache.LookupFresh(ctx, q, "google")

	stats := f.cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Writes)
}

func TestUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := core.NewSearchQuery("closed")
	require.NoError(t, f.backend.Close())

	_, _, err := f.cache.LookupFresh(ctx, q, "google")
	assert.ErrorIs(t, err, core.ErrCacheUnavailable)

	_, err = f.cache.LookupAny(ctx, []string{"closed"})
	assert.ErrorIs(t, err, core.ErrCacheUnavailable)

	err = f.cache.Store(ctx, q, "google", results("https://c.example"), 0)
	assert.ErrorIs(t, err, core.ErrCacheUnavailable)

	_, err = f.cache.CleanupExpired(ctx)
	assert.ErrorIs(t, err, core.ErrCacheUnavailable)
}

func vectors(m map[string][]float32) *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := m[text]; ok {
			return ai.NormalizeVector(v), nil
		}
		return nil, errors.New("no vector for " + text)
	}
	return e
}

func TestSemanticLookup(t *testing.T) {
	embedder := vectors(map[string][]float32{
		"golang channels":     {1, 0, 0},
		"go channels":         {0.95, 0.31, 0},
		"baking bread":        {0, 0, 1},
		"channels in golang?": {0.6, 0.8, 0},
	})
	f := newFixture(t, func(index *badger.QueryIndex) Option {
		return WithSemanticIndex(index, embedder, 0)
	})
	ctx := context.Background()

	require.NoError(t, f.cache.Store(ctx, core.NewSearchQuery("golang channels"), "google", results("https://go.dev/tour"), time.Hour))

	items, ok, err := f.cache.LookupFresh(ctx, core.NewSearchQuery("go channels"), "google")
	require.NoError(t, err)
	require.True(t, ok, "similar query served from cache")
	assert.Equal(t, "https://go.dev/tour", items[0].URL)

	tests := []struct {
		name   string
		query  string
		engine string
	}{
		{"different engine", "go channels", "bing"},
		{"unrelated query", "baking bread", "google"},
		{"below threshold", "channels in golang?", "google"},
		{"embedding failure degrades to miss", "no vector", "google"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := f.cache.LookupFresh(ctx, core.NewSearchQuery(tt.query), tt.engine)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	t.Run("expired match is a miss", func(t *testing.T) {
		f.clock.Advance(time.Hour)
		_, ok, err := f.cache.LookupFresh(ctx, core.NewSearchQuery("go channels"), "google")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cleanup removes query vectors", func(t *testing.T) {
		removed, err := f.cache.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		matches, err := f.index.FindSimilarQueries(ctx, scope(core.NewSearchQuery("golang channels"), "google"), ai.NormalizeVector([]float32{1, 0, 0}), 0, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestSemanticStore_EmbeddingFailureStillStores(t *testing.T) {
	embedder := vectors(nil)
	f := newFixture(t, func(index *badger.QueryIndex) Option {
		return WithSemanticIndex(index, embedder, 0.9)
	})
	ctx := context.Background()
	q := core.NewSearchQuery("anything")

	require.NoError(t, f.cache.Store(ctx, q, "google", results("https://a.example"), 0))
	_, ok, err := f.cache.LookupFresh(ctx, q, "google")
	require.NoError(t, err)
	assert.True(t, ok)
}
