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


// Package search orchestrates metasearch queries.
//
// A Searcher ties together the engine registry, the dispatcher, the result
// cache and the RSS feed store. It offers three modes:
//
//   - Search: per-engine fresh cache lookups, live dispatch of the rest, and
//     fusion without rescoring.
//   - FullText: live engines, every cached entry (stale ones included) and
//     ranked RSS items searched concurrently, then fused with keyword
//     rescoring and paging.
//   - Stream: result sets yielded as they become available.
//
// Engine errors never fail a call. They are logged and recorded in the
// registry, and the remaining sources still answer.
//
// # Usage Example
//
//	s, err := search.NewSearcher(reg, dispatcher, resultCache, feeds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := s.Search(ctx, search.Request{Query: core.NewSearchQuery("golang generics")})
package search
