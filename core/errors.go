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


package core

import (
	"errors"
	"fmt"
)

// Query validation errors
var (
	// ErrInvalidQuery indicates a SearchQuery failed validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmptyQuery indicates the query text is empty or whitespace.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrQueryTooLong indicates the query text exceeds MaxQueryLength.
	ErrQueryTooLong = errors.New("query too long")

	// ErrInvalidPage indicates a page number below 1.
	ErrInvalidPage = errors.New("page must be at least 1")

	// ErrInvalidPageSize indicates a page size outside 1..MaxPageSize.
	ErrInvalidPageSize = errors.New("page size out of range")
)

// Configuration errors
var (
	// ErrConfig indicates a ranking or threshold configuration is invalid.
	ErrConfig = errors.New("invalid configuration")

	// ErrInvalidWeight indicates a keyword weight outside [MinKeywordWeight, MaxKeywordWeight].
	ErrInvalidWeight = errors.New("keyword weight out of range")

	// ErrEmptyKeyword indicates a blank ranking keyword.
	ErrEmptyKeyword = errors.New("keyword cannot be empty")

	// ErrInvalidMinScore indicates a negative minimum score.
	ErrInvalidMinScore = errors.New("min score cannot be negative")

	// ErrInvalidMaxResults indicates a negative result cap.
	ErrInvalidMaxResults = errors.New("max results cannot be negative")

	// ErrInvalidThreshold indicates a failure threshold or similarity threshold out of range.
	ErrInvalidThreshold = errors.New("threshold out of range")
)

// Source errors
var (
	// ErrEngineTimeout indicates an engine did not answer within its timeout or the global deadline.
	ErrEngineTimeout = errors.New("engine timed out")

	// ErrEngineFailure indicates an engine returned an error, an empty or malformed response, or panicked.
	ErrEngineFailure = errors.New("engine failed")

	// ErrCacheUnavailable indicates the result store cannot be accessed.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// EngineError carries the outcome of a failed engine call.
// It matches both its Kind (ErrEngineTimeout or ErrEngineFailure) and its cause.
type EngineError struct {
	Engine string
	Kind   error
	Reason string
	Err    error
}

// NewEngineFailure builds an EngineError of kind ErrEngineFailure.
func NewEngineFailure(engine, reason string, cause error) *EngineError {
	return &EngineError{Engine: engine, Kind: ErrEngineFailure, Reason: reason, Err: cause}
}

// NewEngineTimeout builds an EngineError of kind ErrEngineTimeout.
func NewEngineTimeout(engine string, cause error) *EngineError {
	return &EngineError{Engine: engine, Kind: ErrEngineTimeout, Reason: "timeout", Err: cause}
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine %s: %v", e.Engine, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
