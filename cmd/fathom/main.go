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


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/fathom"
	"github.com/poiesic/fathom/ai"
	"github.com/poiesic/fathom/ai/openai"
	"github.com/poiesic/fathom/config"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/ranking"
	"github.com/poiesic/fathom/reembed"
	"github.com/poiesic/fathom/search"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "fathom",
		Usage: "Metasearch cache and RSS ranking tool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides the configuration)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "fulltext",
				Usage:     "Search cached results and RSS feeds, stale entries included",
				ArgsUsage: "<query>",
				Action:    fulltextCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Result page",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Results per page",
						Value: core.DefaultPageSize,
					},
					&cli.IntFlag{
						Name:  "max-results",
						Usage: "Maximum number of results (0 uses the configured default)",
					},
					&cli.StringSliceFlag{
						Name:  "feed",
						Usage: "Restrict RSS results to this feed URL (repeatable)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Global deadline for the search",
						Value: 30 * time.Second,
					},
				},
			},
			{
				Name:   "rank",
				Usage:  "Rank stored RSS items with a keyword view",
				Action: rankCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "view",
						Usage:    "Path to a YAML ranking view",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "feed",
						Usage: "Only rank items of this feed URL (repeatable)",
					},
				},
			},
			{
				Name:   "import-feed",
				Usage:  "Load RSS items from a JSON file into the feed store",
				Action: importFeedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON array of feed items",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "feed-url",
						Usage: "Feed URL for items that do not name one",
					},
				},
			},
			{
				Name:   "reembed-queries",
				Usage:  "Recompute stored query vectors after an embedding model change",
				Action: reembedQueriesCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of queries to embed per request",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N vectors",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:      "invalidate",
				Usage:     "Remove the cached result list of one query and engine",
				ArgsUsage: "<query>",
				Action:    invalidateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "engine",
						Usage:    "Engine whose cached results are removed",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "page",
						Usage: "Result page of the cached query",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Page size of the cached query",
						Value: core.DefaultPageSize,
					},
					&cli.StringFlag{
						Name:  "lang",
						Usage: "Language of the cached query",
					},
					&cli.StringFlag{
						Name:  "region",
						Usage: "Region of the cached query",
					},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Remove expired cache entries",
				Action: cleanupCommand,
			},
		},
	}
}

// feedItemJSON is the import format of a feed item.
type feedItemJSON struct {
	GUID      string    `json:"guid"`
	FeedURL   string    `json:"feed_url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Link      string    `json:"link"`
	Author    string    `json:"author"`
	Published time.Time `json:"published"`
}

// rankedJSON is the output format of one ranked feed item.
type rankedJSON struct {
	Score           float64  `json:"score"`
	Title           string   `json:"title"`
	Link            string   `json:"link"`
	FeedURL         string   `json:"feed_url"`
	MatchedKeywords []string `json:"matched_keywords"`
}

func openAggregator(c *cli.Context) (*fathom.Aggregator, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if db := c.String("db"); db != "" {
		config.WithStoragePath(db)(cfg)
	}

	agg, err := fathom.New(cfg, fathom.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return agg, nil
}

func fulltextCommand(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("query is required")
	}

	agg, err := openAggregator(c)
	if err != nil {
		return err
	}
	defer agg.Close()

	searcher, err := agg.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	query := core.NewSearchQuery(text)
	query.Page = c.Int("page")
	query.PageSize = c.Int("page-size")

	resp, err := searcher.FullText(context.Background(), search.Request{
		Query:      query,
		Timeout:    c.Duration("timeout"),
		MaxResults: c.Int("max-results"),
		Feeds:      c.StringSlice("feed"),
	})
	if err != nil {
		return fmt.Errorf("full-text search failed: %w", err)
	}
	return writeJSON(c.App.Writer, resp)
}

func rankCommand(c *cli.Context) error {
	data, err := os.ReadFile(c.String("view"))
	if err != nil {
		return fmt.Errorf("failed to read ranking view: %w", err)
	}
	var view core.RankingConfig
	if err := yaml.Unmarshal(data, &view); err != nil {
		return fmt.Errorf("failed to parse ranking view: %w", err)
	}

	agg, err := openAggregator(c)
	if err != nil {
		return err
	}
	defer agg.Close()

	items, err := agg.FeedStore().Items(context.Background(), c.StringSlice("feed"))
	if err != nil {
		return fmt.Errorf("failed to read feed items: %w", err)
	}

	scored, err := ranking.Rank(view, items)
	if err != nil {
		return err
	}

	out := make([]rankedJSON, 0, len(scored))
	for _, s := range scored {
		out = append(out, rankedJSON{
			Score:           s.Score,
			Title:           s.Item.Title,
			Link:            s.Item.Link,
			FeedURL:         s.Item.FeedURL,
			MatchedKeywords: s.MatchedKeywords,
		})
	}
	slog.Debug("ranked feed items", "view", view.Name, "candidates", len(items), "ranked", len(out))
	return writeJSON(c.App.Writer, out)
}

func importFeedCommand(c *cli.Context) error {
	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read feed file: %w", err)
	}
	var raw []feedItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse feed file: %w", err)
	}

	defaultFeed := c.String("feed-url")
	items := make([]core.FeedItem, 0, len(raw))
	for _, r := range raw {
		if r.FeedURL == "" {
			r.FeedURL = defaultFeed
		}
		if r.FeedURL == "" {
			return fmt.Errorf("item %q has no feed_url and --feed-url is not set", r.Title)
		}
		items = append(items, core.FeedItem{
			GUID:      r.GUID,
			FeedURL:   r.FeedURL,
			Title:     r.Title,
			Content:   r.Content,
			Link:      r.Link,
			Author:    r.Author,
			Published: r.Published,
		})
	}

	agg, err := openAggregator(c)
	if err != nil {
		return err
	}
	defer agg.Close()

	if err := agg.FeedStore().AddItems(context.Background(), items...); err != nil {
		return fmt.Errorf("failed to store feed items: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Imported %d feed items\n", len(items))
	return nil
}

func invalidateCommand(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("query is required")
	}

	agg, err := openAggregator(c)
	if err != nil {
		return err
	}
	defer agg.Close()

	query := core.NewSearchQuery(text)
	query.Page = c.Int("page")
	query.PageSize = c.Int("page-size")
	query.Language = c.String("lang")
	query.Region = c.String("region")

	if err := agg.Cache().Invalidate(context.Background(), query, c.String("engine")); err != nil {
		return fmt.Errorf("invalidate failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Invalidated cached results for %q on %s\n", text, c.String("engine"))
	return nil
}

func cleanupCommand(c *cli.Context) error {
	agg, err := openAggregator(c)
	if err != nil {
		return err
	}
	defer agg.Close()

	removed, err := agg.Cache().CleanupExpired(context.Background())
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Removed %d expired cache entries\n", removed)
	return nil
}

func reembedQueriesCommand(c *cli.Context) error {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid embedding configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	return runReembed(c, embedder)
}

// runReembed is split from reembedQueriesCommand so tests can supply an embedder.
func runReembed(c *cli.Context, embedder ai.Embedder) error {
	agg, err := openAggregator(c)
	if err != nil {
		return err
	}
	defer agg.Close()

	reembedder, err := reembed.NewReembedder(agg.QueryIndex(), embedder, &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))

	if _, err := reembedder.Run(context.Background()); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
