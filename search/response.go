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


package search

import (
	"time"

	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/fusion"
)

// Assemble packages a fusion result into the response envelope.
func Assemble(query string, fused fusion.Result, elapsed time.Duration) *core.SearchResponse {
	enginesUsed := fused.EnginesUsed
	if enginesUsed == nil {
		enginesUsed = []string{}
	}
	return &core.SearchResponse{
		Query:       query,
		Results:     fused.ResultItems(),
		TotalCount:  fused.Total,
		Cached:      fused.Cached,
		QueryTimeMS: elapsed.Milliseconds(),
		EnginesUsed: enginesUsed,
	}
}
