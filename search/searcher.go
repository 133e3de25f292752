package search

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/fathom/cache"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/dispatch"
	"github.com/poiesic/fathom/engine"
	"github.com/poiesic/fathom/fusion"
	"github.com/poiesic/fathom/ranking"
	"github.com/poiesic/fathom/registry"
	"github.com/poiesic/fathom/scoring"
	"github.com/poiesic/fathom/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxResults caps the results of a response.
	DefaultMaxResults = 100

	// Source labels of the non-engine contributors to full-text search.
	CacheSource = "cache"
	RSSSource   = "rss"
)

// Request is one search call.
type Request struct {
	Query         core.SearchQuery
	Engines       []string      // Engine names to use; empty means every eligible engine
	Timeout       time.Duration // Global deadline; 0 uses the dispatcher default
	EngineTimeout time.Duration // Per-engine timeout; 0 uses the dispatcher default
	MaxResults    int           // 0 uses DefaultMaxResults
	Force         bool          // Skip the cache and include temporarily disabled engines
	CacheTimeline int           // TTL in seconds for stored results; 0 uses the searcher default
	Feeds         []string      // RSS feeds searched by FullText; empty means all
}

// Searcher orchestrates engines, the result cache and RSS feeds.
type Searcher struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	cache      *cache.Cache
	feeds      storage.FeedStore
	scorer     *scoring.Scorer
	monitor    SearchMonitor
	defaultTTL time.Duration
	maxResults int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "searcher")
		return nil
	}
}

// WithMonitor sets the monitor notified at each stage of a search.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// WithDefaultTTL sets the TTL of stored results when a request has no CacheTimeline.
// Default is the cache's default TTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Searcher) error {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
		return nil
	}
}

// WithMaxResults sets the result cap used when a request has no MaxResults.
func WithMaxResults(n int) Option {
	return func(s *Searcher) error {
		if n > 0 {
			s.maxResults = n
		}
		return nil
	}
}

// WithScorer sets the scorer that gives unscored live results a base score.
// Default is scoring.NewScorer().
func WithScorer(scorer *scoring.Scorer) Option {
	return func(s *Searcher) error {
		if scorer != nil {
			s.scorer = scorer
		}
		return nil
	}
}

// WithClock sets the time source used to measure query time.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewSearcher creates a new searcher. feeds may be nil, in which case
// full-text search has no RSS contribution.
func NewSearcher(
	reg *registry.Registry,
	dispatcher *dispatch.Dispatcher,
	resultCache *cache.Cache,
	feeds storage.FeedStore,
	opts ...Option,
) (*Searcher, error) {
	if reg == nil {
		return nil, ErrRegistryRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	if resultCache == nil {
		return nil, ErrCacheRequired
	}

	s := &Searcher{
		registry:   reg,
		dispatcher: dispatcher,
		cache:      resultCache,
		feeds:      feeds,
		scorer:     scoring.NewScorer(),
		monitor:    &noopMonitor{},
		defaultTTL: resultCache.DefaultTTL(),
		maxResults: DefaultMaxResults,
		now:        time.Now,
		logger:     slog.Default().With("component", "searcher"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search answers a query from fresh cache entries where possible and from
// live engines otherwise. Engine failures are logged and recorded, never returned.
func (s *Searcher) Search(ctx context.Context, req Request) (*core.SearchResponse, error) {
	start := s.now()
	if err := core.ValidateQuery(&req.Query); err != nil {
		return nil, err
	}
	s.monitor.Start(req.Query.Query)

	sources, remaining := s.cachedSources(ctx, req)

	if len(remaining) > 0 {
		for _, rs := range s.dispatcher.Batch(ctx, req.Query, s.plan(req, remaining)) {
			s.prepare(ctx, req, rs)
			sources = append(sources, fusion.Source{Name: rs.Source, Kind: fusion.KindLive, Items: rs.Items})
		}
	}

	fused := fusion.Fuse(sources, fusion.Options{Page: 1, PageSize: s.limit(req)})
	s.monitor.AfterFusion(fused)

	resp := Assemble(req.Query.Query, fused, s.now().Sub(start))
	s.logger.Debug("search complete",
		"query", req.Query.Query,
		"results", len(resp.Results),
		"engines", resp.EnginesUsed,
		"cached", resp.Cached,
		"elapsed_ms", resp.QueryTimeMS)
	s.monitor.Finish(resp)
	return resp, nil
}

// FullText searches live engines, the whole result cache (stale entries
// included) and RSS feeds concurrently, then rescores the merged list by
// keyword presence. It fails only when the cache is unavailable and no
// engine could be selected.
func (s *Searcher) FullText(ctx context.Context, req Request) (*core.SearchResponse, error) {
	start := s.now()
	if err := core.ValidateQuery(&req.Query); err != nil {
		return nil, err
	}
	s.monitor.Start(req.Query.Query)

	tokens := keywords(req.Query.Query)
	selected := s.registry.Select(req.Engines, req.Force)
	names := make([]string, 0, len(selected))
	for _, e := range selected {
		names = append(names, engine.Name(e))
	}

	var (
		live     []*core.ResultSet
		cached   []core.ResultItem
		cacheErr error
		rss      []core.ResultItem
		rssErr   error
		g        errgroup.Group
	)
	// Branch errors are kept per branch and classified after Wait: a failing
	// branch must not cancel or hide the others.
	if len(names) > 0 {
		g.Go(func() error {
			live = s.dispatcher.Batch(ctx, req.Query, s.plan(req, names))
			return nil
		})
	}
	g.Go(func() error {
		cached, cacheErr = s.cache.LookupAny(ctx, tokens)
		return nil
	})
	if s.feeds != nil {
		g.Go(func() error {
			rss, rssErr = s.rankFeeds(ctx, req.Feeds, tokens)
			return nil
		})
	}
	_ = g.Wait() // branches always return nil

	if cacheErr != nil {
		if errors.Is(cacheErr, core.ErrCacheUnavailable) && len(names) == 0 {
			return nil, cacheErr
		}
		s.logger.Warn("cache lookup failed, continuing without history", "err", cacheErr)
	}
	if rssErr != nil {
		s.logger.Warn("rss ranking failed, continuing without feeds", "err", rssErr)
	}

	sources := make([]fusion.Source, 0, len(live)+2)
	for _, rs := range live {
		s.prepare(ctx, req, rs)
		sources = append(sources, fusion.Source{Name: rs.Source, Kind: fusion.KindLive, Items: rs.Items})
	}
	sources = append(sources,
		fusion.Source{Name: CacheSource, Kind: fusion.KindCache, Items: standardized(cached)},
		fusion.Source{Name: RSSSource, Kind: fusion.KindRSS, Items: standardized(rss)},
	)

	fused := fusion.Fuse(sources, fusion.Options{
		Tokens:   req.Query.Tokens(),
		Page:     req.Query.Page,
		PageSize: req.Query.PageSize,
		Limit:    s.limit(req),
	})
	s.monitor.AfterFusion(fused)

	resp := Assemble(req.Query.Query, fused, s.now().Sub(start))
	s.logger.Debug("full-text search complete",
		"query", req.Query.Query,
		"live", len(live),
		"cached", len(cached),
		"rss", len(rss),
		"total", resp.TotalCount)
	s.monitor.Finish(resp)
	return resp, nil
}

// Stream yields result sets as they become available: fresh cached sets
// first, then live sets in completion order. Live sets are standardized and
// stored before they are yielded. The request is validated before returning;
// the sequence can be ranged over once.
func (s *Searcher) Stream(ctx context.Context, req Request) (iter.Seq2[string, *core.ResultSet], error) {
	if err := core.ValidateQuery(&req.Query); err != nil {
		return nil, err
	}

	var consumed atomic.Bool
	return func(yield func(string, *core.ResultSet) bool) {
		if consumed.Swap(true) {
			return
		}
		s.monitor.Start(req.Query.Query)

		sources, remaining := s.cachedSources(ctx, req)
		for _, src := range sources {
			if !yield(src.Name, &core.ResultSet{Source: src.Name, Items: src.Items, TotalResults: len(src.Items)}) {
				return
			}
		}
		if len(remaining) == 0 {
			return
		}

		for name, rs := range s.dispatcher.Stream(ctx, req.Query, s.plan(req, remaining)) {
			s.prepare(ctx, req, rs)
			if !yield(name, rs) {
				return
			}
		}
	}, nil
}

// cachedSources selects engines and serves each from a fresh cache entry when
// allowed. It returns the cache-served sources and the engines left to dispatch.
func (s *Searcher) cachedSources(ctx context.Context, req Request) ([]fusion.Source, []string) {
	selected := s.registry.Select(req.Engines, req.Force)
	sources := make([]fusion.Source, 0, len(selected))
	remaining := make([]string, 0, len(selected))

	for _, e := range selected {
		name := engine.Name(e)
		if req.Force {
			remaining = append(remaining, name)
			continue
		}

		items, ok, err := s.cache.LookupFresh(ctx, req.Query, name)
		if err != nil {
			s.logger.Warn("cache lookup failed", "engine", name, "err", err)
		}
		if ok {
			s.monitor.CacheHit(name, len(items))
			sources = append(sources, fusion.Source{Name: name, Kind: fusion.KindCache, Items: items})
			continue
		}
		s.monitor.CacheMiss(name)
		remaining = append(remaining, name)
	}
	return sources, remaining
}

// prepare standardizes and scores a live set, then stores it.
func (s *Searcher) prepare(ctx context.Context, req Request, rs *core.ResultSet) {
	core.StandardizeResultSet(rs)
	s.scorer.ScoreResultSet(rs, req.Query.Query)
	s.monitor.EngineResult(rs.Source, rs)

	if err := s.cache.Store(ctx, req.Query, rs.Source, rs.Items, s.ttl(req)); err != nil {
		s.logger.Warn("failed to cache engine results", "engine", rs.Source, "err", err)
	}
}

func (s *Searcher) rankFeeds(ctx context.Context, feeds []string, tokens []string) ([]core.ResultItem, error) {
	items, err := s.feeds.Items(ctx, feeds)
	if err != nil {
		return nil, err
	}
	cfg := ranking.KeywordConfig("fulltext", tokens)
	scored, err := ranking.Rank(cfg, items)
	if err != nil {
		return nil, err
	}
	return ranking.ToResultItems(scored, cfg), nil
}

func (s *Searcher) plan(req Request, engines []string) dispatch.Plan {
	return dispatch.Plan{
		Engines:       engines,
		EngineTimeout: req.EngineTimeout,
		Deadline:      req.Timeout,
		Force:         req.Force,
	}
}

func (s *Searcher) ttl(req Request) time.Duration {
	if req.CacheTimeline > 0 {
		return time.Duration(req.CacheTimeline) * time.Second
	}
	return s.defaultTTL
}

func (s *Searcher) limit(req Request) int {
	if req.MaxResults > 0 {
		return req.MaxResults
	}
	return s.maxResults
}

func standardized(items []core.ResultItem) []core.ResultItem {
	if len(items) == 0 {
		return items
	}
	set := &core.ResultSet{Items: items}
	core.StandardizeResultSet(set)
	return set.Items
}
