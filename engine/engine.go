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


package engine

import (
	"context"

	"github.com/poiesic/fathom/core"
)

// Engine is a search provider adapter.
// Implementations must be safe for concurrent use. Search should honor ctx
// cancellation; callers bound the call even when it does not.
type Engine interface {
	// Metadata describes the adapter. It must not change over the adapter's lifetime.
	Metadata() core.EngineMetadata

	// Search runs the query against the provider. An empty result set is valid.
	Search(ctx context.Context, query *core.SearchQuery) (*core.ResultSet, error)
}

// SearchFunc is the signature of an engine's search operation.
type SearchFunc func(ctx context.Context, query *core.SearchQuery) (*core.ResultSet, error)

// Func adapts a plain function into an Engine.
type Func struct {
	meta   core.EngineMetadata
	search SearchFunc
}

var _ Engine = (*Func)(nil)

// NewFunc creates an Engine from metadata and a search function.
func NewFunc(meta core.EngineMetadata, search SearchFunc) *Func {
	return &Func{meta: meta, search: search}
}

// Metadata returns the adapter metadata.
func (f *Func) Metadata() core.EngineMetadata {
	return f.meta
}

// Search calls the wrapped function.
func (f *Func) Search(ctx context.Context, query *core.SearchQuery) (*core.ResultSet, error) {
	return f.search(ctx, query)
}

// Name is a shorthand for e.Metadata().Name.
func Name(e Engine) string {
	return e.Metadata().Name
}
