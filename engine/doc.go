// Package engine defines the contract for search provider adapters.
//
// Adapters own query building and response parsing for one provider. The
// rest of the system only sees Metadata and Search; timeouts are carried by
// the context passed to Search.
//
// Func turns a closure into an adapter, which is handy for wiring simple
// providers and for tests:
//
//	e := engine.NewFunc(core.EngineMetadata{Name: "wikipedia"}, func(ctx context.Context, q *core.SearchQuery) (*core.ResultSet, error) {
//	    return &core.ResultSet{Source: "wikipedia"}, nil
//	})
package engine
