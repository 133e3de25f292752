package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/fathom/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedStore(t *testing.T) {
	_, feeds, _, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	const techFeed = "https://tech.example/feed.xml"
	const newsFeed = "https://news.example/rss"

	err = feeds.AddItems(ctx,
		core.FeedItem{GUID: "t1", FeedURL: techFeed, Title: "Old AI story", Link: "https://tech.example/1", Published: day},
		core.FeedItem{GUID: "t2", FeedURL: techFeed, Title: "New AI story", Link: "https://tech.example/2", Published: day.Add(48 * time.Hour)},
		core.FeedItem{FeedURL: newsFeed, Title: "No guid", Link: "https://news.example/a", Published: day.Add(24 * time.Hour)},
		core.FeedItem{FeedURL: newsFeed, Title: "No identity at all"},
	)
	require.NoError(t, err)

	t.Run("all feeds newest first", func(t *testing.T) {
		items, err := feeds.Items(ctx, nil)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "New AI story", items[0].Title)
		assert.Equal(t, "No guid", items[1].Title)
		assert.Equal(t, "Old AI story", items[2].Title)
	})

	t.Run("filtered by feed", func(t *testing.T) {
		items, err := feeds.Items(ctx, []string{techFeed, techFeed})
		require.NoError(t, err)
		require.Len(t, items, 2)
		for _, item := range items {
			assert.Equal(t, techFeed, item.FeedURL)
		}
	})

	t.Run("unknown feed is empty", func(t *testing.T) {
		items, err := feeds.Items(ctx, []string{"https://unknown.example/feed"})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("same guid replaces item", func(t *testing.T) {
		require.NoError(t, feeds.AddItems(ctx, core.FeedItem{GUID: "t1", FeedURL: techFeed, Title: "Updated AI story", Link: "https://tech.example/1b", Published: day}))
		items, err := feeds.Items(ctx, []string{techFeed})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "Updated AI story", items[1].Title)
	})

	t.Run("same link without guid replaces item", func(t *testing.T) {
		require.NoError(t, feeds.AddItems(ctx, core.FeedItem{FeedURL: newsFeed, Title: "Renamed", Link: "https://news.example/a"}))
		items, err := feeds.Items(ctx, []string{newsFeed})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Renamed", items[0].Title)
	})
}
