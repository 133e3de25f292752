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


package registry

import "errors"

var (
	// ErrInvalidEngine is returned when registering a nil engine or one without a name.
	ErrInvalidEngine = errors.New("engine must have a name")

	// ErrDuplicateEngine is returned when an engine name is already registered.
	ErrDuplicateEngine = errors.New("engine already registered")

	// ErrUnknownEngine is returned when an operation names an engine that is not registered.
	ErrUnknownEngine = errors.New("unknown engine")
)
