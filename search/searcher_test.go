package search

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/fathom/cache"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/dispatch"
	"github.com/poiesic/fathom/engine/mock"
	"github.com/poiesic/fathom/fusion"
	"github.com/poiesic/fathom/registry"
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

type env struct {
	searcher *Searcher
	registry *registry.Registry
	cache    *cache.Cache
	feeds    *badger.FeedStore
	backend  *badger.Backend
	clock    *fakeClock
}

func newEnv(t *testing.T, engines ...*mock.MockEngine) *env {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}

	results, feeds, _, backend, err := badger.NewMemoryStores(badger.WithCacheClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	reg, err := registry.New(registry.Config{FailureThreshold: 3})
	require.NoError(t, err)
	for _, e := range engines {
		require.NoError(t, reg.Register(e))
	}

	d, err := dispatch.New(reg, dispatch.WithEngineTimeout(50*time.Millisecond), dispatch.WithDeadline(time.Second))
	require.NoError(t, err)
	t.Cleanup(d.Release)

	c, err := cache.New(results, cache.WithClock(clock.Now))
	require.NoError(t, err)

	s, err := NewSearcher(reg, d, c, feeds)
	require.NoError(t, err)

	return &env{searcher: s, registry: reg, cache: c, feeds: feeds, backend: backend, clock: clock}
}

func request(query string) Request {
	return Request{Query: core.NewSearchQuery(query)}
}

func TestNewSearcher(t *testing.T) {
	e := newEnv(t)
	d, err := dispatch.New(e.registry)
	require.NoError(t, err)
	defer d.Release()

	t.Run("valid configuration", func(t *testing.T) {
		s, err := NewSearcher(e.registry, d, e.cache, nil)
		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("with options", func(t *testing.T) {
		s, err := NewSearcher(e.registry, d, e.cache, e.feeds,
			WithLogger(slog.Default()),
			WithMonitor(nil),
			WithDefaultTTL(time.Minute),
			WithMaxResults(5),
			WithClock(time.Now),
		)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, s.defaultTTL)
		assert.Equal(t, 5, s.maxResults)
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		s, err := NewSearcher(e.registry, d, e.cache, nil, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, s.logger)
	})

	t.Run("nil registry", func(t *testing.T) {
		_, err := NewSearcher(nil, d, e.cache, nil)
		assert.Equal(t, ErrRegistryRequired, err)
	})

	t.Run("nil dispatcher", func(t *testing.T) {
		_, err := NewSearcher(e.registry, nil, e.cache, nil)
		assert.Equal(t, ErrDispatcherRequired, err)
	})

	t.Run("nil cache", func(t *testing.T) {
		_, err := NewSearcher(e.registry, d, nil, nil)
		assert.Equal(t, ErrCacheRequired, err)
	})
}

func TestSearch_PartialFailure(t *testing.T) {
	a := mock.NewMockEngine("A",
		core.ResultItem{Title: "asyncio", URL: "https://docs.python.org/3/library/asyncio.html", Score: 0.8},
		core.ResultItem{Title: "Async IO in Python", URL: "https://realpython.com/async-io-python/", Score: 0.6},
	)
	b := mock.NewSlowEngine("B", time.Second, core.ResultItem{Title: "late", URL: "https://late.example"})
	e := newEnv(t, a, b)

	resp, err := e.searcher.Search(context.Background(), request("python async"))
	require.NoError(t, err)

	assert.Equal(t, "python async", resp.Query)
	assert.Equal(t, []string{"A"}, resp.EnginesUsed)
	assert.Equal(t, 2, resp.TotalCount)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 0.8, resp.Results[0].Score)
	assert.Equal(t, 0.6, resp.Results[1].Score)
	assert.False(t, resp.Cached)

	h, _ := e.registry.Health("B")
	assert.Equal(t, 1, h.ConsecutiveFailures)
}

func TestSearch_Idempotent(t *testing.T) {
	a := mock.NewMockEngine("A", core.ResultItem{Title: "Go", URL: "https://go.dev", Score: 0.7})
	b := mock.NewMockEngine("B", core.ResultItem{Title: "Go blog", URL: "https://go.dev/blog", Score: 0.5})
	e := newEnv(t, a, b)
	ctx := context.Background()

	first, err := e.searcher.Search(ctx, request("golang"))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.searcher.Search(ctx, request("golang"))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, a.CallCount(), "no new dispatch")
	assert.Equal(t, 1, b.CallCount(), "no new dispatch")
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.EnginesUsed, second.EnginesUsed)

	t.Run("force bypasses the cache", func(t *testing.T) {
		req := request("golang")
		req.Force = true
		resp, err := e.searcher.Search(ctx, req)
		require.NoError(t, err)
		assert.False(t, resp.Cached)
		assert.Equal(t, 2, a.CallCount())
	})

	t.Run("expired entries are dispatched again", func(t *testing.T) {
		e.clock.Advance(cache.DefaultTTL)
		resp, err := e.searcher.Search(ctx, request("golang"))
		require.NoError(t, err)
		assert.False(t, resp.Cached)
		assert.Equal(t, 3, a.CallCount())
	})
}

func TestSearch_CacheTimeline(t *testing.T) {
	a := mock.NewMockEngine("A", core.ResultItem{Title: "Go", URL: "https://go.dev", Score: 0.7})
	e := newEnv(t, a)
	ctx := context.Background()

	req := request("golang")
	req.CacheTimeline = 60
	_, err := e.searcher.Search(ctx, req)
	require.NoError(t, err)

	e.clock.Advance(61 * time.Second)
	resp, err := e.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, a.CallCount())
}

func TestSearch_StandardizesAndScores(t *testing.T) {
	a := mock.NewMockEngine("google",
		core.ResultItem{Title: "  Rust &amp; Go  ", URL: "https://x.example", Content: "systems\n\nlanguages"},
		core.ResultItem{Title: "duplicate", URL: "HTTPS://X.example"},
		core.ResultItem{Title: "preset", URL: "https://p.example", Score: 0.33},
	)
	e := newEnv(t, a)

	resp, err := e.searcher.Search(context.Background(), request("rust"))
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	byURL := map[string]core.ResultItem{}
	for _, r := range resp.Results {
		byURL[r.URL] = r
	}
	assert.Equal(t, "Rust & Go", byURL["https://x.example"].Title)
	assert.Equal(t, "systems languages", byURL["https://x.example"].Content)
	assert.Greater(t, byURL["https://x.example"].Score, 0.0)
	assert.LessOrEqual(t, byURL["https://x.example"].Score, 1.0)
	assert.Equal(t, 0.33, byURL["https://p.example"].Score)
}

func TestSearch_MaxResults(t *testing.T) {
	var items []core.ResultItem
	for _, u := range []string{"a", "b", "c", "d"} {
		items = append(items, core.ResultItem{Title: u, URL: "https://" + u + ".example", Score: 0.5})
	}
	e := newEnv(t, mock.NewMockEngine("A", items...))

	req := request("letters")
	req.MaxResults = 3
	resp, err := e.searcher.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 4, resp.TotalCount)
}

func TestSearch_InvalidQuery(t *testing.T) {
	e := newEnv(t, mock.NewMockEngine("A"))

	tests := []struct {
		name  string
		query core.SearchQuery
		want  error
	}{
		{"empty", core.NewSearchQuery("   "), core.ErrEmptyQuery},
		{"page zero", core.SearchQuery{Query: "x", PageSize: 10}, core.ErrInvalidPage},
		{"page size too large", core.SearchQuery{Query: "x", Page: 1, PageSize: 101}, core.ErrInvalidPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.searcher.Search(context.Background(), Request{Query: tt.query})
			assert.ErrorIs(t, err, core.ErrInvalidQuery)
			assert.ErrorIs(t, err, tt.want)

			_, err = e.searcher.FullText(context.Background(), Request{Query: tt.query})
			assert.ErrorIs(t, err, tt.want)

			_, err = e.searcher.Stream(context.Background(), Request{Query: tt.query})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearch_AllEnginesFail(t *testing.T) {
	e := newEnv(t, mock.NewFailingEngine("A", assert.AnError))

	resp, err := e.searcher.Search(context.Background(), request("anything"))
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, []string{}, resp.EnginesUsed)
	assert.Zero(t, resp.TotalCount)
}

func TestFullText_StaleCacheWins(t *testing.T) {
	const u = "https://example.com/ai-article"
	live := mock.NewMockEngine("A", core.ResultItem{Title: "Example", URL: u, Content: "x", Score: 0.7})
	e := newEnv(t, live)
	ctx := context.Background()

	require.NoError(t, e.cache.Store(ctx, core.NewSearchQuery("old query"), "bing", []core.ResultItem{
		{Title: "Example", URL: u, Content: "x", Score: 0.9},
	}, time.Minute))
	e.clock.Advance(time.Hour)

	resp, err := e.searcher.FullText(ctx, request("ai"))
	require.NoError(t, err)

	var hits []core.ResultItem
	for _, r := range resp.Results {
		if r.URL == u {
			hits = append(hits, r)
		}
	}
	require.Len(t, hits, 1)
	assert.Equal(t, 0.9, hits[0].Score)
	assert.Contains(t, resp.EnginesUsed, "A")
	assert.Contains(t, resp.EnginesUsed, CacheSource)
	assert.True(t, resp.Cached)
}

func TestFullText_RescoresAndIncludesRSS(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.feeds.AddItems(ctx,
		core.FeedItem{GUID: "1", FeedURL: "https://blog.example/rss", Title: "Kubernetes operators", Content: "writing operators", Link: "https://blog.example/ops"},
		core.FeedItem{GUID: "2", FeedURL: "https://blog.example/rss", Title: "Gardening", Content: "tomatoes", Link: "https://blog.example/garden"},
	))
	require.NoError(t, e.cache.Store(ctx, core.NewSearchQuery("k8s"), "google", []core.ResultItem{
		{Title: "Operators explained", URL: "https://k8s.example/operators", Score: 0.2},
	}, time.Hour))

	resp, err := e.searcher.FullText(ctx, request("the operators"))
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, []string{CacheSource, RSSSource}, resp.EnginesUsed)
	assert.True(t, resp.Cached)
	for _, r := range resp.Results {
		assert.NotEqual(t, "https://blog.example/garden", r.URL)
	}
	// Cache item: 0.2 + title bonus
	assert.InDelta(t, 0.5, scoreOf(resp, "https://k8s.example/operators"), 1e-9)
	// RSS item: normalized 1.0, capped after bonuses
	assert.Equal(t, 1.0, scoreOf(resp, "https://blog.example/ops"))
}

func TestFullText_RescoresWithEveryQueryToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.cache.Store(ctx, core.NewSearchQuery("rust"), "google", []core.ResultItem{
		{Title: "The Rust Book", URL: "https://doc.example/book", Score: 0.1},
	}, time.Hour))

	resp, err := e.searcher.FullText(ctx, request("the rust"))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	// 0.1 + title bonus for "the" and "rust"
	assert.InDelta(t, 0.7, resp.Results[0].Score, 1e-9)
}

func TestFullText_MaxResultsDecidesCached(t *testing.T) {
	e := newEnv(t, mock.NewMockEngine("A", core.ResultItem{Title: "zzz live", URL: "https://live.example", Score: 0.9}))
	ctx := context.Background()
	require.NoError(t, e.cache.Store(ctx, core.NewSearchQuery("older"), "google", []core.ResultItem{
		{Title: "zzz old", URL: "https://old.example", Score: 0.2},
	}, time.Hour))

	req := request("zzz")
	req.MaxResults = 1
	resp, err := e.searcher.FullText(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://live.example", resp.Results[0].URL)
	assert.False(t, resp.Cached)

	req.MaxResults = 2
	resp, err = e.searcher.FullText(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Cached)
}

func TestFullText_FeedFilter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.feeds.AddItems(ctx,
		core.FeedItem{GUID: "1", FeedURL: "https://a.example/rss", Title: "golang news", Link: "https://a.example/1"},
		core.FeedItem{GUID: "2", FeedURL: "https://b.example/rss", Title: "golang tips", Link: "https://b.example/2"},
	))

	req := request("golang")
	req.Feeds = []string{"https://b.example/rss"}
	resp, err := e.searcher.FullText(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://b.example/2", resp.Results[0].URL)
}

func TestFullText_Paging(t *testing.T) {
	var items []core.ResultItem
	for i, u := range []string{"a", "b", "c"} {
		items = append(items, core.ResultItem{Title: u, URL: "https://" + u + ".example", Score: 0.9 - float64(i)/10})
	}
	e := newEnv(t, mock.NewMockEngine("A", items...))

	req := request("zzz")
	req.Query.Page = 2
	req.Query.PageSize = 2
	resp, err := e.searcher.FullText(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://c.example", resp.Results[0].URL)
	assert.Equal(t, 3, resp.TotalCount)
}

func TestFullText_CacheUnavailable(t *testing.T) {
	t.Run("no engines selected", func(t *testing.T) {
		e := newEnv(t)
		require.NoError(t, e.backend.Close())

		_, err := e.searcher.FullText(context.Background(), request("anything"))
		assert.ErrorIs(t, err, core.ErrCacheUnavailable)
	})

	t.Run("live engines still answer", func(t *testing.T) {
		e := newEnv(t, mock.NewMockEngine("A", core.ResultItem{Title: "anything", URL: "https://a.example", Score: 0.4}))
		require.NoError(t, e.backend.Close())

		resp, err := e.searcher.FullText(context.Background(), request("anything"))
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, resp.EnginesUsed)
		assert.Len(t, resp.Results, 1)
	})
}

func TestStream(t *testing.T) {
	a := mock.NewMockEngine("A", core.ResultItem{Title: "a", URL: "https://a.example", Score: 0.5})
	b := mock.NewSlowEngine("B", 10*time.Millisecond, core.ResultItem{Title: "b", URL: "https://b.example"})
	e := newEnv(t, a, b)
	ctx := context.Background()

	// Warm the cache for A only
	warm := request("stream")
	warm.Engines = []string{"A"}
	_, err := e.searcher.Search(ctx, warm)
	require.NoError(t, err)

	seq, err := e.searcher.Stream(ctx, request("stream"))
	require.NoError(t, err)

	var names []string
	for name, rs := range seq {
		names = append(names, name)
		assert.NotEmpty(t, rs.Items)
	}
	assert.Equal(t, []string{"A", "B"}, names, "cached sets come first")
	assert.Equal(t, 1, a.CallCount())

	count := 0
	for range seq {
		count++
	}
	assert.Zero(t, count, "sequence is not restartable")

	items, ok, err := e.cache.LookupFresh(ctx, core.NewSearchQuery("stream"), "B")
	require.NoError(t, err)
	require.True(t, ok, "streamed live sets are stored")
	assert.Greater(t, items[0].Score, 0.0, "and scored")
}

func TestStream_EarlyStop(t *testing.T) {
	a := mock.NewMockEngine("A", core.ResultItem{Title: "a", URL: "https://a.example", Score: 0.5})
	b := mock.NewSlowEngine("B", 500*time.Millisecond, core.ResultItem{Title: "b", URL: "https://b.example"})
	e := newEnv(t, a, b)

	req := request("stop")
	req.EngineTimeout = time.Second
	seq, err := e.searcher.Stream(context.Background(), req)
	require.NoError(t, err)

	for name := range seq {
		assert.Equal(t, "A", name)
		break
	}
	h, _ := e.registry.Health("B")
	assert.Zero(t, h.ConsecutiveFailures)
}

type recordingMonitor struct {
	events []string
}

func (m *recordingMonitor) Start(query string)            { m.events = append(m.events, "start") }
func (m *recordingMonitor) CacheHit(engine string, _ int) { m.events = append(m.events, "hit:"+engine) }
func (m *recordingMonitor) CacheMiss(engine string)       { m.events = append(m.events, "miss:"+engine) }
func (m *recordingMonitor) AfterFusion(_ fusion.Result)   { m.events = append(m.events, "fusion") }
func (m *recordingMonitor) Finish(_ *core.SearchResponse) { m.events = append(m.events, "finish") }

func (m *recordingMonitor) EngineResult(engine string, _ *core.ResultSet) {
	m.events = append(m.events, "result:"+engine)
}

func TestSearchWithMonitor(t *testing.T) {
	e := newEnv(t, mock.NewMockEngine("A", core.ResultItem{Title: "a", URL: "https://a.example", Score: 0.5}))
	monitor := &recordingMonitor{}
	s, err := NewSearcher(e.registry, e.searcher.dispatcher, e.cache, nil, WithMonitor(monitor))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Search(ctx, request("monitor"))
	require.NoError(t, err)
	_, err = s.Search(ctx, request("monitor"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start", "miss:A", "result:A", "fusion", "finish",
		"start", "hit:A", "fusion", "finish",
	}, monitor.events)
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"operators", "kubernetes"}, keywords("The operators, in Kubernetes!"))
	assert.Equal(t, []string{"the", "a"}, keywords("The a"), "stop-word-only queries keep their tokens")
}

func scoreOf(resp *core.SearchResponse, url string) float64 {
	for _, r := range resp.Results {
		if r.URL == url {
			return r.Score
		}
	}
	return -1
}
