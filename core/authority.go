package core

import "strings"

const defaultEngineAuthority = 0.70

var engineAuthority = map[string]float64{
	"google":     1.0,
	"bing":       0.95,
	"duckduckgo": 0.90,
	"brave":      0.88,
	"startpage":  0.85,
	"qwant":      0.83,
	"yahoo":      0.80,

	"baidu":     0.95,
	"search360": 0.85,
	"sogou":     0.80,

	"yandex": 0.85,
	"mojeek": 0.75,

	"wikipedia":     0.95,
	"wikidata":      0.90,
	"github":        0.92,
	"stackoverflow": 0.93,
	"unsplash":      0.85,
}

// EngineAuthority returns the static trust weight of an engine in [0, 1].
// Unknown engines get 0.70.
func EngineAuthority(name string) float64 {
	if a, ok := engineAuthority[strings.ToLower(name)]; ok {
		return a
	}
	return defaultEngineAuthority
}
