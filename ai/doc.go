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


// Package ai provides the embedding abstraction used by the semantic query cache.
//
// The cache can serve a fresh entry stored under a differently worded query
// when the two queries embed close enough together. Embedder is the only
// contract; implementations live in sub-packages:
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: deterministic test double
//
// Public constructors such as openai.NewEmbedder return the interface.
// mock.NewMockEmbedder returns the concrete type so tests can inject
// behavior and read call counts.
//
// Embedders return unit-length vectors (see NormalizeVector), which lets the
// store rank stored queries by plain dot product.
package ai
