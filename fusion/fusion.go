package fusion

import (
	"cmp"
	"slices"
	"strings"

	"github.com/poiesic/fathom/core"
)

// Keyword bonuses in tenths of a point: 0.3 per title hit, 0.1 per content hit.
// Hits are summed as integers and converted once so that the total is exact.
const (
	titleBonusTenths   = 3
	contentBonusTenths = 1
)

// Kind classifies a source. Lower kinds win score ties.
type Kind int

const (
	KindLive Kind = iota
	KindCache
	KindRSS
)

func (k Kind) String() string {
	switch k {
	case KindLive:
		return "live"
	case KindCache:
		return "cache"
	case KindRSS:
		return "rss"
	default:
		return "unknown"
	}
}

// Source is one contributor to a fusion.
type Source struct {
	Name  string
	Kind  Kind
	Items []core.ResultItem
}

// Options control a fusion.
type Options struct {
	Tokens   []string // Lower-cased query tokens for rescoring; nil disables rescoring
	Page     int      // 1-based page of the window; values below 1 mean 1
	PageSize int      // 0 means no window
	Limit    int      // Cap on windowed items; 0 means no cap
}

// Item is a fused result with its provenance.
type Item struct {
	core.ResultItem
	Source  string
	Kind    Kind
	arrival int
}

// Result is the outcome of a fusion.
type Result struct {
	Items       []Item   // Windowed, best first
	Total       int      // Number of distinct URLs before windowing
	EnginesUsed []string // Sources that contributed at least one item, in order of first contribution
	Cached      bool     // Some windowed item came from the cache or RSS
}

// ResultItems returns the bare result items in order.
func (r Result) ResultItems() []core.ResultItem {
	out := make([]core.ResultItem, len(r.Items))
	for i := range r.Items {
		out[i] = r.Items[i].ResultItem
	}
	return out
}

// Fuse merges the sources into one ranked, URL-deduplicated list.
//
// Among items sharing a URL (compared case-insensitively after trimming) the
// highest score wins, and the earliest arrival wins a tie. Survivors are
// rescored when tokens are given, then ordered by score, source kind and
// arrival. Sources are consumed in order, which makes the output deterministic.
func Fuse(sources []Source, opts Options) Result {
	var (
		result  Result
		byURL   = make(map[string]int)
		kept    []Item
		arrival int
	)

	for _, src := range sources {
		if len(src.Items) > 0 && !slices.Contains(result.EnginesUsed, src.Name) {
			result.EnginesUsed = append(result.EnginesUsed, src.Name)
		}
		for _, ri := range src.Items {
			ri.Score = core.ClampScore(ri.Score)
			item := Item{ResultItem: ri, Source: src.Name, Kind: src.Kind, arrival: arrival}
			arrival++

			key := ri.URLKey()
			if idx, seen := byURL[key]; seen {
				if item.Score > kept[idx].Score {
					kept[idx] = item
				}
				continue
			}
			byURL[key] = len(kept)
			kept = append(kept, item)
		}
	}

	if opts.Tokens != nil {
		for i := range kept {
			kept[i].Score = Rescore(kept[i].ResultItem, opts.Tokens)
		}
	}

	slices.SortFunc(kept, func(a, b Item) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.arrival, b.arrival)
	})

	result.Total = len(kept)
	result.Items = window(kept, opts.Page, opts.PageSize)
	if opts.Limit > 0 && len(result.Items) > opts.Limit {
		result.Items = result.Items[:opts.Limit]
	}
	for _, item := range result.Items {
		if item.Kind != KindLive {
			result.Cached = true
			break
		}
	}
	return result
}

// Rescore adds keyword bonuses to an item's score, capped at 1.
// It never lowers a score.
func Rescore(item core.ResultItem, tokens []string) float64 {
	title := strings.ToLower(item.Title)
	content := strings.ToLower(item.Content)
	var tenths int
	for _, tok := range tokens {
		tok = strings.ToLower(tok)
		if tok == "" {
			continue
		}
		if strings.Contains(title, tok) {
			tenths += titleBonusTenths
		}
		if strings.Contains(content, tok) {
			tenths += contentBonusTenths
		}
	}
	score := item.Score + float64(tenths)/10
	return core.ClampScore(max(score, item.Score))
}

func window(items []Item, page, size int) []Item {
	if size <= 0 {
		return items
	}
	page = max(page, 1)
	start := (page - 1) * size
	if start >= len(items) {
		return []Item{}
	}
	return items[start:min(start+size, len(items))]
}
