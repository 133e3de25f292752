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


// Package ranking scores RSS items against named keyword views.
//
// Each keyword contributes weight*(1+ln(count)) where count is the number of
// case-insensitive, non-overlapping occurrences in the item's title and
// content. An item missing a required keyword scores 0 and is dropped.
package ranking

import (
	"math"
	"slices"
	"strings"

	"github.com/poiesic/fathom/core"
)

// Rank scores items against cfg and returns the survivors, best first.
//
// Items scoring below cfg.MinScore, and items missing a required keyword,
// are dropped. With a MinScore of 0, items matching no keyword survive at 0.
// Items sharing a link (case-insensitive) keep only the highest score.
// Equal scores keep their input order. The output is truncated to
// cfg.MaxResults when it is positive.
func Rank(cfg core.RankingConfig, items []core.FeedItem) ([]core.ScoredItem, error) {
	if err := core.ValidateRankingConfig(&cfg); err != nil {
		return nil, err
	}

	keywords := make([]string, len(cfg.Keywords))
	for i, kw := range cfg.Keywords {
		keywords[i] = strings.ToLower(kw.Keyword)
	}

	var (
		scored []core.ScoredItem
		byLink = make(map[string]int)
	)
	for _, item := range items {
		s, ok := score(cfg, keywords, item)
		if !ok || s.Score < cfg.MinScore {
			continue
		}

		link := strings.ToLower(strings.TrimSpace(item.Link))
		if idx, seen := byLink[link]; seen {
			if s.Score > scored[idx].Score {
				scored[idx] = s
			}
			continue
		}
		byLink[link] = len(scored)
		scored = append(scored, s)
	}

	slices.SortStableFunc(scored, func(a, b core.ScoredItem) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if cfg.MaxResults > 0 && len(scored) > cfg.MaxResults {
		scored = scored[:cfg.MaxResults]
	}
	if scored == nil {
		scored = []core.ScoredItem{}
	}
	return scored, nil
}

// score returns ok=false when a required keyword is missing.
func score(cfg core.RankingConfig, keywords []string, item core.FeedItem) (core.ScoredItem, bool) {
	text := strings.ToLower(item.Title + " " + item.Content)
	out := core.ScoredItem{Item: item}

	for i, kw := range cfg.Keywords {
		count := strings.Count(text, keywords[i])
		if count == 0 {
			if kw.Required {
				return core.ScoredItem{Item: item}, false
			}
			continue
		}
		out.Score += kw.Weight * (1 + math.Log(float64(count)))
		out.MatchedKeywords = append(out.MatchedKeywords, kw.Keyword)
	}
	return out, true
}

// KeywordConfig builds the view used to rank feed items for a full-text
// query: one optional keyword of weight 1 per distinct token. Any match
// scores at least 1, so MinScore 1 keeps exactly the matching items.
func KeywordConfig(name string, tokens []string) core.RankingConfig {
	cfg := core.RankingConfig{Name: name, MinScore: core.MinKeywordWeight}
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		cfg.Keywords = append(cfg.Keywords, core.RankingKeyword{Keyword: tok, Weight: core.MinKeywordWeight})
	}
	return cfg
}

// Normalize maps a ranking score into [0, 1] by dividing it by the summed
// keyword weights of cfg.
func Normalize(score float64, cfg core.RankingConfig) float64 {
	var total float64
	for _, kw := range cfg.Keywords {
		total += kw.Weight
	}
	if total <= 0 {
		return 0
	}
	return core.ClampScore(score / total)
}

// ToResultItems converts ranked feed items into result items with normalized scores.
func ToResultItems(scored []core.ScoredItem, cfg core.RankingConfig) []core.ResultItem {
	out := make([]core.ResultItem, 0, len(scored))
	for _, s := range scored {
		out = append(out, core.ResultItem{
			Title:         s.Item.Title,
			URL:           s.Item.Link,
			Content:       s.Item.Content,
			Score:         Normalize(s.Score, cfg),
			SiteName:      s.Item.FeedURL,
			PublishedDate: s.Item.Published,
			ResultType:    core.ResultTypeNews,
		})
	}
	return out
}
