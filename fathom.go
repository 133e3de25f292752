// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package fathom

import (
	"log/slog"

	"github.com/poiesic/fathom/ai"
	"github.com/poiesic/fathom/ai/openai"
	"github.com/poiesic/fathom/cache"
	"github.com/poiesic/fathom/config"
	"github.com/poiesic/fathom/dispatch"
	"github.com/poiesic/fathom/engine"
	"github.com/poiesic/fathom/registry"
	"github.com/poiesic/fathom/scoring"
	"github.com/poiesic/fathom/search"
	"github.com/poiesic/fathom/storage"
	"github.com/poiesic/fathom/storage/badger"
)

// Aggregator owns the storage backend and the long-lived components built on
// it: the engine registry, the dispatcher worker pool and the result cache.
type Aggregator struct {
	cfg        *config.Config
	backend    *badger.Backend
	results    *badger.ResultCache
	feeds      *badger.FeedStore
	index      *badger.QueryIndex
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	cache      *cache.Cache
	logger     *slog.Logger
}

// Option configures an Aggregator.
type Option func(*aggregatorOptions)

type aggregatorOptions struct {
	logger   *slog.Logger
	embedder ai.Embedder
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *aggregatorOptions) {
		o.logger = logger
	}
}

// WithEmbedder overrides the embedder built from the embedding configuration.
// It has no effect when the configuration has no embedding section.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *aggregatorOptions) {
		o.embedder = embedder
	}
}

// New opens storage and builds the components described by cfg.
// A nil cfg uses config.DefaultConfig().
func New(cfg *config.Config, opts ...Option) (*Aggregator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &aggregatorOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return nil, err
	}
	results := badger.NewResultCache(backend)
	feeds := badger.NewFeedStore(backend)
	index := badger.NewQueryIndex(backend)

	reg, err := registry.New(registry.Config{
		FailureThreshold: cfg.Engines.FailureThreshold,
		Cooldown:         cfg.Engines.Cooldown,
	}, registry.WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	cacheOpts := []cache.Option{
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithLogger(logger),
	}
	if cfg.Embedding != nil {
		embedder := options.embedder
		if embedder == nil {
			embedder, err = openai.NewEmbedder(cfg.Embedding)
			if err != nil {
				backend.Close()
				return nil, err
			}
		}
		cacheOpts = append(cacheOpts,
			cache.WithSemanticIndex(index, embedder, cfg.Cache.SemanticThreshold))
	}
	resultCache, err := cache.New(results, cacheOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithEngineTimeout(cfg.Engines.EngineTimeout),
		dispatch.WithDeadline(cfg.Engines.Deadline),
		dispatch.WithRetries(cfg.Engines.Retries, cfg.Engines.RetryDelay),
		dispatch.WithLogger(logger),
	}
	if cfg.Engines.PoolSize > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithPoolSize(cfg.Engines.PoolSize))
	}
	dispatcher, err := dispatch.New(reg, dispatchOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Aggregator{
		cfg:        cfg,
		backend:    backend,
		results:    results,
		feeds:      feeds,
		index:      index,
		registry:   reg,
		dispatcher: dispatcher,
		cache:      resultCache,
		logger:     logger,
	}, nil
}

// Close stops the worker pool and closes storage.
func (a *Aggregator) Close() error {
	a.dispatcher.Release()

	if err := a.backend.Close(); err != nil {
		a.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Register adds engines to the registry. Registration stops at the first error.
func (a *Aggregator) Register(engines ...engine.Engine) error {
	for _, e := range engines {
		if err := a.registry.Register(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) Registry() *registry.Registry {
	return a.registry
}

func (a *Aggregator) Cache() *cache.Cache {
	return a.cache
}

func (a *Aggregator) FeedStore() storage.FeedStore {
	return a.feeds
}

// QueryIndex returns the store of query embeddings. It is populated only
// while the semantic cache is enabled.
func (a *Aggregator) QueryIndex() storage.QueryIndex {
	return a.index
}

// NewSearcher creates a searcher over the aggregator's components. The
// configured result cap and cache TTL apply unless opts override them.
func (a *Aggregator) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithLogger(a.logger),
		search.WithMaxResults(a.cfg.Search.MaxResults),
		search.WithDefaultTTL(a.cfg.Cache.DefaultTTL),
		search.WithScorer(scoring.NewScorerWith(a.cfg.Scoring.Weights, a.cfg.Scoring.BM25)),
	}
	return search.NewSearcher(a.registry, a.dispatcher, a.cache, a.feeds, append(base, opts...)...)
}
