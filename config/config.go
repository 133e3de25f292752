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


package config

import (
	"fmt"
	"os"
	"time"

	"github.com/poiesic/fathom/ai"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/scoring"
	"gopkg.in/yaml.v3"
)

// Config is the complete fathom configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Engines EnginesConfig `yaml:"engines"`
	Cache   CacheConfig   `yaml:"cache"`
	Search  SearchConfig  `yaml:"search"`
	Scoring ScoringConfig `yaml:"scoring"`

	// Embedding configures the embedding service used by the semantic query
	// cache. Nil disables semantic lookups.
	Embedding *ai.Config `yaml:"embedding"`
}

// StorageConfig locates the badger database.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// EnginesConfig tunes engine health tracking and dispatch.
type EnginesConfig struct {
	// FailureThreshold is the number of consecutive failures after which an
	// engine is temporarily disabled.
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long a temporarily disabled engine sits out before it is
	// selected again.
	Cooldown time.Duration `yaml:"cooldown"`

	PoolSize      int           `yaml:"pool_size"`
	EngineTimeout time.Duration `yaml:"engine_timeout"`
	Deadline      time.Duration `yaml:"deadline"`
	Retries       int           `yaml:"retries"` // Total attempts per engine call
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	DefaultTTL        time.Duration `yaml:"default_ttl"`
	SemanticThreshold float32       `yaml:"semantic_threshold"`
}

// SearchConfig tunes response assembly.
type SearchConfig struct {
	MaxResults int `yaml:"max_results"`
}

// ScoringConfig tunes base scores given to live results that arrive unscored.
type ScoringConfig struct {
	BM25    scoring.Params  `yaml:"bm25"`
	Weights scoring.Weights `yaml:"weights"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithStoragePath sets the on-disk database directory.
func WithStoragePath(path string) ConfigOption {
	return func(c *Config) {
		c.Storage.Path = path
		c.Storage.InMemory = false
	}
}

// WithInMemory keeps all state in memory.
func WithInMemory() ConfigOption {
	return func(c *Config) {
		c.Storage.InMemory = true
	}
}

// WithEmbedding enables the semantic query cache.
func WithEmbedding(cfg *ai.Config) ConfigOption {
	return func(c *Config) {
		c.Embedding = cfg
	}
}

// WithFailureThreshold sets the consecutive failure threshold.
func WithFailureThreshold(n int) ConfigOption {
	return func(c *Config) {
		c.Engines.FailureThreshold = n
	}
}

// WithCooldown sets the temporary disable duration.
func WithCooldown(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Engines.Cooldown = d
	}
}

// WithEngineTimeout sets the per-engine timeout.
func WithEngineTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Engines.EngineTimeout = d
	}
}

// WithDeadline sets the global dispatch deadline.
func WithDeadline(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Engines.Deadline = d
	}
}

// WithDefaultTTL sets the cache TTL used when a request has none.
func WithDefaultTTL(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Cache.DefaultTTL = d
	}
}

// WithMaxResults sets the default response size.
func WithMaxResults(n int) ConfigOption {
	return func(c *Config) {
		c.Search.MaxResults = n
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: "fathom.db",
		},
		Engines: EnginesConfig{
			FailureThreshold: 5,
			Cooldown:         5 * time.Minute,
			PoolSize:         64,
			EngineTimeout:    10 * time.Second,
			Deadline:         30 * time.Second,
			Retries:          1,
			RetryDelay:       200 * time.Millisecond,
		},
		Cache: CacheConfig{
			DefaultTTL:        time.Hour,
			SemanticThreshold: 0.92,
		},
		Search: SearchConfig{
			MaxResults: 100,
		},
		Scoring: ScoringConfig{
			BM25:    scoring.DefaultParams(),
			Weights: scoring.DefaultWeights(),
		},
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a YAML configuration file. Keys missing from the file keep
// their default values. The result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable. The embedding section,
// when present, is normalized as part of validation.
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage path is required unless in_memory is set", core.ErrConfig)
	}

	e := c.Engines
	if e.FailureThreshold < 1 {
		return fmt.Errorf("%w: %w: failure_threshold must be at least 1", core.ErrConfig, core.ErrInvalidThreshold)
	}
	if e.Cooldown < 0 || e.EngineTimeout < 0 || e.Deadline < 0 || e.RetryDelay < 0 {
		return fmt.Errorf("%w: engine durations cannot be negative", core.ErrConfig)
	}
	if e.PoolSize < 0 {
		return fmt.Errorf("%w: pool_size cannot be negative", core.ErrConfig)
	}
	if e.Retries < 1 {
		return fmt.Errorf("%w: retries must be at least 1", core.ErrConfig)
	}

	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("%w: default_ttl cannot be negative", core.ErrConfig)
	}
	if c.Cache.SemanticThreshold < 0 || c.Cache.SemanticThreshold > 1 {
		return fmt.Errorf("%w: %w: semantic_threshold must be within [0, 1]", core.ErrConfig, core.ErrInvalidThreshold)
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("%w: %w", core.ErrConfig, core.ErrInvalidMaxResults)
	}

	s := c.Scoring
	if s.BM25.K1 <= 0 || s.BM25.B < 0 || s.BM25.B > 1 {
		return fmt.Errorf("%w: bm25 needs k1 > 0 and b within [0, 1]", core.ErrConfig)
	}
	w := s.Weights
	if w.Title < 0 || w.Content < 0 || w.URL < 0 || w.Authority < 0 || w.Position < 0 || w.Sum() == 0 {
		return fmt.Errorf("%w: scoring weights must be non-negative and not all zero", core.ErrConfig)
	}

	if c.Embedding != nil {
		if err := c.Embedding.Validate(); err != nil {
			return fmt.Errorf("%w: %w", core.ErrConfig, err)
		}
	}
	return nil
}
