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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/fathom/ai"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/dispatch"
	"github.com/poiesic/fathom/storage"
)

// Config holds configuration for a reembedding run.
type Config struct {
	// BatchSize is the number of query texts embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of vectors)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding request
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Reembedder rewrites every stored query vector with a new embedder.
type Reembedder struct {
	index    storage.QueryIndex
	embedder ai.Embedder
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReembedder creates a reembedder. progress receives human-readable
// progress output (typically os.Stderr); nil discards it.
func NewReembedder(index storage.QueryIndex, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	if config.MaxRetries <= 0 {
		return nil, dispatch.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		index:    index,
		embedder: embedder,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reembedder"),
	}, nil
}

// Run re-embeds every stored query vector and returns how many were rewritten.
// A failing batch stops the run; vectors of earlier batches stay rewritten.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	vectors, err := r.index.QueryVectors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list query vectors: %w", err)
	}

	total := len(vectors)
	if total == 0 {
		fmt.Fprintf(r.progress, "No query vectors found (0 vectors)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d query vectors (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	for start := 0; start < total; start += r.config.BatchSize {
		if err := ctx.Err(); err != nil {
			tracker.Finish()
			return processed, err
		}

		batch := vectors[start:min(start+r.config.BatchSize, total)]
		if err := r.processBatch(ctx, batch); err != nil {
			tracker.Finish()
			return processed, err
		}
		processed += len(batch)
		tracker.Add(len(batch))
	}
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d vectors in %v\n",
		processed, elapsed.Round(time.Millisecond))
	r.logger.Info("query vectors reembedded", "count", processed, "elapsed", elapsed)

	return processed, nil
}

// processBatch embeds the query texts of batch and stores the normalized
// vectors under their original keys and scopes.
func (r *Reembedder) processBatch(ctx context.Context, batch []core.QueryVector) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Query
	}

	var embeddings [][]float32
	backoff := dispatch.Backoff{Attempts: r.config.MaxRetries, Delay: r.config.RetryDelay, Logger: r.logger}
	err := backoff.Do(ctx, func() error {
		var err error
		embeddings, err = r.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", r.config.MaxRetries, err)
	}

	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
	}

	for i := range batch {
		batch[i].Vector = ai.NormalizeVector(embeddings[i])
		if err := r.index.PutQueryVector(ctx, &batch[i]); err != nil {
			return fmt.Errorf("failed to store query vector %s: %w", batch[i].Key, err)
		}
	}
	return nil
}
