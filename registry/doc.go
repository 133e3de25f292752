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


// Package registry tracks search engine adapters and their health.
//
// Each engine moves between two states. It is disabled temporarily once its
// consecutive failures (errors and timeouts alike) reach the failure
// threshold. It comes back on its next successful call or when the cooldown
// since its last failure has elapsed, whichever happens first. Forced
// selection lets callers probe a disabled engine; a success then clears it.
//
// Engines switched off with SetEnabled stay off regardless of force.
package registry
