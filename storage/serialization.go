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


package storage

import (
	"fmt"

	"github.com/poiesic/fathom/core"
)

// MarshalCacheEntry serializes a CacheEntry to bytes.
func MarshalCacheEntry(entry *core.CacheEntry) []byte {
	buf := make([]byte, CacheEntryMUS.Size(*entry))
	CacheEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalCacheEntry deserializes a CacheEntry from bytes.
func UnmarshalCacheEntry(data []byte) (*core.CacheEntry, error) {
	entry, _, err := CacheEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: cache entry: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// MarshalFeedItem serializes a FeedItem to bytes.
func MarshalFeedItem(item *core.FeedItem) []byte {
	buf := make([]byte, FeedItemMUS.Size(*item))
	FeedItemMUS.Marshal(*item, buf)
	return buf
}

// UnmarshalFeedItem deserializes a FeedItem from bytes.
func UnmarshalFeedItem(data []byte) (*core.FeedItem, error) {
	item, _, err := FeedItemMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: feed item: %w", ErrSerializationFailed, err)
	}
	return &item, nil
}

// MarshalQueryVector serializes a QueryVector to bytes.
func MarshalQueryVector(vector *core.QueryVector) []byte {
	buf := make([]byte, QueryVectorMUS.Size(*vector))
	QueryVectorMUS.Marshal(*vector, buf)
	return buf
}

// UnmarshalQueryVector deserializes a QueryVector from bytes.
func UnmarshalQueryVector(data []byte) (*core.QueryVector, error) {
	vector, _, err := QueryVectorMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: query vector: %w", ErrSerializationFailed, err)
	}
	return &vector, nil
}
