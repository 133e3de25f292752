// Package fusion merges result lists from live engines, the result cache and
// RSS feeds into one ranked list without duplicate URLs.
package fusion
