package badger

import (
	"context"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/storage"
)

// FeedStore implements storage.FeedStore for BadgerDB.
type FeedStore struct {
	backend *Backend
}

var _ storage.FeedStore = (*FeedStore)(nil)

// NewFeedStore creates a new FeedStore.
func NewFeedStore(backend *Backend) *FeedStore {
	return &FeedStore{
		backend: backend,
	}
}

// AddItems stores feed items, replacing earlier items with the same feed and identity.
// Items without a GUID or link cannot be deduplicated and are skipped.
func (s *FeedStore) AddItems(ctx context.Context, items ...core.FeedItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		for i := range items {
			if items[i].Identity() == "" {
				s.backend.logger.Warn("skipping feed item without guid or link", "feed", items[i].FeedURL, "title", items[i].Title)
				continue
			}
			if err := tx.Set(makeFeedItemKey(&items[i]), storage.MarshalFeedItem(&items[i])); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Items returns the items of the given feeds, or of every feed when feedURLs is empty.
// Items are ordered newest first, then by link.
func (s *FeedStore) Items(ctx context.Context, feedURLs []string) ([]core.FeedItem, error) {
	prefixes := [][]byte{[]byte(feedItemPrefix)}
	if len(feedURLs) > 0 {
		prefixes = prefixes[:0]
		for _, feedURL := range slices.Compact(slices.Sorted(slices.Values(feedURLs))) {
			prefixes = append(prefixes, makeFeedPrefix(feedURL))
		}
	}

	var items []core.FeedItem
	for _, prefix := range prefixes {
		err := s.backend.scanPrefix(prefix, func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := storage.UnmarshalFeedItem(val)
			if err != nil {
				return err
			}
			items = append(items, *item)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(items, func(a, b core.FeedItem) int {
		if c := b.Published.Compare(a.Published); c != 0 {
			return c
		}
		return strings.Compare(a.Link, b.Link)
	})
	return items, nil
}
