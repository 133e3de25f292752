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
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// MaxQueryLength is the longest accepted query text, in runes.
	MaxQueryLength = 1000
	// DefaultPageSize is used when a query leaves PageSize unset.
	DefaultPageSize = 10
	// MaxPageSize is the largest page a caller may request.
	MaxPageSize = 100
	// MinKeywordWeight and MaxKeywordWeight bound RankingKeyword.Weight.
	MinKeywordWeight = 1.0
	MaxKeywordWeight = 10.0
)

// ValidateQuery validates a SearchQuery according to domain rules.
//
// Validation rules:
//   - Query must contain a non-whitespace character
//   - Query must not exceed MaxQueryLength runes
//   - Page must be at least 1
//   - PageSize must be between 1 and MaxPageSize
//
// Engine-specific page size limits are not validated here; the dispatcher
// clamps them per engine with SearchQuery.ForEngine.
func ValidateQuery(q *SearchQuery) error {
	if q == nil {
		return fmt.Errorf("%w: query is nil", ErrInvalidQuery)
	}

	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrEmptyQuery)
	}

	if utf8.RuneCountInString(q.Query) > MaxQueryLength {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrQueryTooLong)
	}

	if q.Page < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrInvalidPage)
	}

	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrInvalidPageSize)
	}

	return nil
}

// ValidateRankingConfig validates an RSS ranking view.
//
// Validation rules:
//   - Every keyword must be non-blank
//   - Every weight must lie in [MinKeywordWeight, MaxKeywordWeight]
//   - MinScore must not be negative
//   - MaxResults must not be negative (0 means unlimited)
func ValidateRankingConfig(cfg *RankingConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: ranking config is nil", ErrConfig)
	}

	for _, kw := range cfg.Keywords {
		if strings.TrimSpace(kw.Keyword) == "" {
			return fmt.Errorf("%w: %w", ErrConfig, ErrEmptyKeyword)
		}
		if kw.Weight < MinKeywordWeight || kw.Weight > MaxKeywordWeight {
			return fmt.Errorf("%w: %w: %q has weight %v", ErrConfig, ErrInvalidWeight, kw.Keyword, kw.Weight)
		}
	}

	if cfg.MinScore < 0 {
		return fmt.Errorf("%w: %w", ErrConfig, ErrInvalidMinScore)
	}

	if cfg.MaxResults < 0 {
		return fmt.Errorf("%w: %w", ErrConfig, ErrInvalidMaxResults)
	}

	return nil
}

// ClampScore limits a score to [0, 1].
func ClampScore(score float64) float64 {
	if score < 0 || math.IsNaN(score) {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
