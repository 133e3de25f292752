package badger

// NewMemoryStores creates in-memory result, feed and query-vector stores for testing.
// All three share the returned backend; the caller must close it when done.
func NewMemoryStores(opts ...ResultCacheOption) (*ResultCache, *FeedStore, *QueryIndex, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return NewResultCache(backend, opts...), NewFeedStore(backend), NewQueryIndex(backend), backend, nil
}
