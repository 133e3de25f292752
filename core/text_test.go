package core

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "collapses whitespace", in: "  hello   world  ", max: 100, want: "hello world"},
		{name: "decodes entities", in: "Tom &amp; Jerry", max: 100, want: "Tom & Jerry"},
		{name: "newlines and tabs", in: "a\n\tb", max: 100, want: "a b"},
		{name: "exact length kept", in: "abcde", max: 5, want: "abcde"},
		{name: "truncated", in: "abcdefgh", max: 6, want: "abc..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in, tt.max); got != tt.want {
				t.Errorf("CleanText() = %q, want %q", got, tt.want)
			}
		})
	}

	long := CleanText(strings.Repeat("日本", 300), 100)
	if utf8.RuneCountInString(long) != 100 || !strings.HasSuffix(long, "...") {
		t.Errorf("CleanText() multibyte truncation produced %d runes", utf8.RuneCountInString(long))
	}
}

func TestStandardizeResultSet(t *testing.T) {
	original := []ResultItem{
		{Title: " First  result ", URL: "https://Example.com/a", Content: "x", Score: 1.4},
		{Title: "Duplicate", URL: "https://example.com/A ", Score: 0.2},
		{Title: "No link", URL: "   ", Score: -1},
		{Title: strings.Repeat("t", 300), URL: "https://example.com/b"},
	}
	set := &ResultSet{Source: "google", Items: original}

	StandardizeResultSet(set)

	if len(set.Items) != 3 {
		t.Fatalf("StandardizeResultSet() kept %d items, want 3", len(set.Items))
	}
	if set.Items[0].Title != "First result" || set.Items[0].Score != 1 {
		t.Errorf("first item not standardized: %+v", set.Items[0])
	}
	if set.Items[1].URL != "#" || set.Items[1].Score != 0 {
		t.Errorf("empty url item not standardized: %+v", set.Items[1])
	}
	if utf8.RuneCountInString(set.Items[2].Title) != 200 {
		t.Errorf("long title not truncated to 200 runes")
	}
	if original[0].Title != " First  result " {
		t.Errorf("StandardizeResultSet() modified the engine's slice")
	}

	StandardizeResultSet(nil)
}
