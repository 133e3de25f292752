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


// Package storage provides the storage abstraction layer for fathom.
//
// This package defines the store contracts the search core consumes, so the
// persistent engine behind them (BadgerDB today) can be swapped or mocked.
//
// # Stores
//
//   - ResultStore: engine result lists keyed by core.CacheKey, with stale retention
//   - FeedStore: RSS items written by an external fetcher
//   - QueryIndex: query embeddings for semantic cache lookups
//
// # Staleness
//
// A ResultStore never removes an entry because it expired. GetFresh treats an
// expired entry as absent, while GetIncludeStale and ScanMatching still return
// it, which is what lets full-text search reach past results. Storage stays
// bounded only through explicit CleanupExpired calls.
//
// # Serialization
//
// Stored values are encoded with mus-go serializers (codec.go). The Marshal and
// Unmarshal helpers in serialization.go wrap decoding failures in
// ErrSerializationFailed.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Writes to the same key
// are last-write-wins; no cross-key ordering is guaranteed.
package storage
