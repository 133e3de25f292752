package badger

import (
	"fmt"
	"strings"

	"github.com/poiesic/fathom/core"
)

// Key prefixes for different data types
const (
	resultPrefix      = "result:"
	feedItemPrefix    = "rss:"
	queryVectorPrefix = "qvec:"
)

// makeResultKey generates a key for a cached result list.
func makeResultKey(cacheKey string) []byte {
	return []byte(resultPrefix + cacheKey)
}

// cacheKeyFromResultKey strips the result prefix from a stored key.
func cacheKeyFromResultKey(key []byte) string {
	return strings.TrimPrefix(string(key), resultPrefix)
}

// makeFeedPrefix generates the key prefix shared by all items of a feed.
// Format: rss:feedID:
func makeFeedPrefix(feedURL string) []byte {
	return []byte(fmt.Sprintf("%s%016x:", feedItemPrefix, uint64(core.IDFromContent(feedURL))))
}

// makeFeedItemKey generates a key for a feed item. Items with the same
// identity (GUID, or link when absent) in the same feed share a key.
// Format: rss:feedID:itemID
func makeFeedItemKey(item *core.FeedItem) []byte {
	prefix := makeFeedPrefix(item.FeedURL)
	return fmt.Appendf(prefix, "%016x", uint64(core.IDFromContent(item.Identity())))
}

// makeQueryVectorKey generates a key for the embedding of a cached query.
func makeQueryVectorKey(cacheKey string) []byte {
	return []byte(queryVectorPrefix + cacheKey)
}
