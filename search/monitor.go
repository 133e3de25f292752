package search

import (
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/fusion"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Hooks may be called from the goroutine running the search only.
type SearchMonitor interface {
	Start(query string)
	CacheHit(engine string, items int)
	CacheMiss(engine string)
	EngineResult(engine string, set *core.ResultSet)
	AfterFusion(result fusion.Result)
	Finish(response *core.SearchResponse)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                           {}
func (n *noopMonitor) CacheHit(_ string, _ int)                 {}
func (n *noopMonitor) CacheMiss(_ string)                       {}
func (n *noopMonitor) EngineResult(_ string, _ *core.ResultSet) {}
func (n *noopMonitor) AfterFusion(_ fusion.Result)              {}
func (n *noopMonitor) Finish(_ *core.SearchResponse)            {}
