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


// Package scoring assigns base relevance scores to live engine results that
// arrive without one. The score mixes BM25 relevance of the title and content,
// query terms in the URL, the engine's authority, and the item's position in
// the engine's own ranking.
package scoring

import (
	"math"
	"strings"
	"unicode"

	"github.com/poiesic/fathom/core"
)

// Params are the BM25 tuning parameters.
type Params struct {
	K1 float64 `yaml:"k1"` // Term frequency saturation, usually 1.2 to 2.0
	B  float64 `yaml:"b"`  // Document length normalization
}

// DefaultParams returns k1=1.5, b=0.75.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// Weights combine the component scores. They sum to 1.
type Weights struct {
	Title     float64 `yaml:"title"`
	Content   float64 `yaml:"content"`
	URL       float64 `yaml:"url"`
	Authority float64 `yaml:"authority"`
	Position  float64 `yaml:"position"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Title + w.Content + w.URL + w.Authority + w.Position
}

// DefaultWeights favors the title, then the content.
func DefaultWeights() Weights {
	return Weights{
		Title:     0.40,
		Content:   0.30,
		URL:       0.10,
		Authority: 0.15,
		Position:  0.05,
	}
}

// Scorer computes base scores for result items.
type Scorer struct {
	weights Weights
	params  Params
}

// NewScorer creates a scorer with the default weights and parameters.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights(), params: DefaultParams()}
}

// NewScorerWith creates a scorer with explicit weights and parameters.
func NewScorerWith(weights Weights, params Params) *Scorer {
	return &Scorer{weights: weights, params: params}
}

// ScoreResultSet scores the items of rs whose score is 0, in place.
// Items that already carry a score are left alone. Average document lengths
// are taken over the whole set and positions follow the set's order.
func (s *Scorer) ScoreResultSet(rs *core.ResultSet, query string) {
	if rs == nil || len(rs.Items) == 0 {
		return
	}

	avgTitle, avgContent := averageLengths(rs.Items)
	for i := range rs.Items {
		if rs.Items[i].Score != 0 {
			continue
		}
		rs.Items[i].Score = s.score(&rs.Items[i], query, rs.Source, i, avgTitle, avgContent)
	}
}

func (s *Scorer) score(item *core.ResultItem, query, engine string, position int, avgTitle, avgContent float64) float64 {
	title := min(1.0, BM25(item.Title, query, avgTitle, s.params)*0.7+exactMatchBonus(item.Title, query)*0.3)
	content := min(1.0, BM25(item.Content, query, avgContent, s.params)*0.8+exactMatchBonus(item.Content, query)*0.2)

	total := title*s.weights.Title +
		content*s.weights.Content +
		urlRelevance(item.URL, query)*s.weights.URL +
		core.EngineAuthority(engine)*s.weights.Authority +
		positionScore(position)*s.weights.Position
	return core.ClampScore(total)
}

func averageLengths(items []core.ResultItem) (title, content float64) {
	for i := range items {
		title += float64(len(Tokenize(items[i].Title)))
		content += float64(len(Tokenize(items[i].Content)))
	}
	n := float64(len(items))
	return title / n, content / n
}

// Tokenize lower-cases text and splits it on anything that is not a letter,
// a digit or an underscore.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// BM25 scores document against query, normalized to [0, 1].
// IDF is taken as 1 since each result is scored on its own.
func BM25(document, query string, avgDocLength float64, p Params) float64 {
	docTokens := Tokenize(document)
	queryTokens := Tokenize(query)
	if len(docTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}
	if avgDocLength <= 0 {
		avgDocLength = float64(len(docTokens))
	}

	tf := make(map[string]int, len(docTokens))
	for _, tok := range docTokens {
		tf[tok]++
	}

	docLength := float64(len(docTokens))
	var score float64
	for _, qt := range queryTokens {
		freq, ok := tf[qt]
		if !ok {
			continue
		}
		f := float64(freq)
		score += f * (p.K1 + 1) / (f + p.K1*(1-p.B+p.B*docLength/avgDocLength))
	}

	maxScore := float64(len(queryTokens)) * (p.K1 + 1)
	return min(1.0, score/maxScore)
}

// exactMatchBonus rewards text that contains the whole query.
func exactMatchBonus(text, query string) float64 {
	t := strings.ToLower(text)
	q := strings.ToLower(query)
	switch {
	case q == "" || !strings.Contains(t, q):
		return 0
	case t == q:
		return 1.0
	case strings.HasPrefix(t, q):
		return 0.8
	default:
		return 0.5
	}
}

// urlRelevance is the fraction of query tokens found in the URL.
func urlRelevance(url, query string) float64 {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return 0
	}
	u := strings.ToLower(url)
	matches := 0
	for _, tok := range tokens {
		if strings.Contains(u, tok) {
			matches++
		}
	}
	return float64(matches) / float64(len(tokens))
}

// positionScore decays logarithmically with the engine's own rank (0-based).
func positionScore(position int) float64 {
	return 1 / (1 + math.Log(float64(position+1)))
}
