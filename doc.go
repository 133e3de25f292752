// Package fathom is a metasearch orchestration engine.
//
// An Aggregator opens a badger database and wires the engine registry, the
// dispatcher and the result cache around it. Engines are supplied by the
// caller as engine.Engine implementations:
//
//	agg, err := fathom.New(config.NewConfig(config.WithInMemory()))
//	if err != nil {
//		return err
//	}
//	defer agg.Close()
//
//	if err := agg.Register(myEngine); err != nil {
//		return err
//	}
//	searcher, err := agg.NewSearcher()
//	resp, err := searcher.Search(ctx, search.Request{Query: core.NewSearchQuery("golang generics")})
package fathom
