package core

import (
	"html"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength   = 200
	maxContentLength = 500
	emptyURL         = "#"
)

// CleanText decodes HTML entities, collapses runs of whitespace and truncates
// the result to maxLength runes, marking truncation with "...".
func CleanText(text string, maxLength int) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	cleaned = html.UnescapeString(cleaned)

	if maxLength <= 3 || utf8.RuneCountInString(cleaned) <= maxLength {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:maxLength-3]) + "..."
}

// StandardizeItem normalizes an engine result in place.
func StandardizeItem(item *ResultItem) {
	item.Title = CleanText(item.Title, maxTitleLength)
	item.Content = CleanText(item.Content, maxContentLength)
	item.URL = strings.TrimSpace(item.URL)
	if item.URL == "" {
		item.URL = emptyURL
	}
	item.Score = ClampScore(item.Score)
}

// StandardizeResultSet normalizes every item of a set and removes in-set URL
// duplicates, keeping the first occurrence.
func StandardizeResultSet(set *ResultSet) {
	if set == nil {
		return
	}
	seen := make(map[string]struct{}, len(set.Items))
	items := make([]ResultItem, 0, len(set.Items))
	for _, item := range set.Items {
		StandardizeItem(&item)
		key := item.URLKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, item)
	}
	set.Items = items
}
