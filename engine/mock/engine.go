package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/engine"
)

// MockEngine is a test double for engine.Engine.
// Behavior is controlled by the exported fields, which must be set before use.
type MockEngine struct {
	Meta core.EngineMetadata

	// SearchFunc is called by Search if set. It takes precedence over the other fields.
	SearchFunc func(ctx context.Context, query *core.SearchQuery) (*core.ResultSet, error)

	// Items are returned in a result set tagged with the engine name.
	Items []core.ResultItem

	// Err is returned instead of results.
	Err error

	// Delay is waited before answering. The wait ends early on ctx cancellation
	// unless IgnoreContext is set.
	Delay         time.Duration
	IgnoreContext bool

	// Panic makes Search panic with this value.
	Panic any

	calls atomic.Int64

	mu      sync.Mutex
	queries []core.SearchQuery
}

var _ engine.Engine = (*MockEngine)(nil)

// NewMockEngine creates a mock engine returning items.
func NewMockEngine(name string, items ...core.ResultItem) *MockEngine {
	return &MockEngine{
		Meta:  core.EngineMetadata{Name: name, Type: core.EngineTypeGeneral, SupportsPagination: true},
		Items: items,
	}
}

// NewFailingEngine creates a mock engine that always returns err.
func NewFailingEngine(name string, err error) *MockEngine {
	e := NewMockEngine(name)
	e.Err = err
	return e
}

// NewSlowEngine creates a mock engine that answers after delay.
func NewSlowEngine(name string, delay time.Duration, items ...core.ResultItem) *MockEngine {
	e := NewMockEngine(name, items...)
	e.Delay = delay
	return e
}

// Metadata returns the configured metadata.
func (m *MockEngine) Metadata() core.EngineMetadata {
	return m.Meta
}

// Search records the call and answers according to the configured behavior.
func (m *MockEngine) Search(ctx context.Context, query *core.SearchQuery) (*core.ResultSet, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.queries = append(m.queries, *query)
	m.mu.Unlock()

	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query)
	}

	if m.Delay > 0 {
		if m.IgnoreContext {
			time.Sleep(m.Delay)
		} else {
			timer := time.NewTimer(m.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if m.Panic != nil {
		panic(m.Panic)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	items := make([]core.ResultItem, len(m.Items))
	copy(items, m.Items)
	return &core.ResultSet{
		Source:       m.Meta.Name,
		Items:        items,
		TotalResults: len(items),
		Pagination:   &core.Pagination{Page: query.Page, PageSize: query.PageSize},
	}, nil
}

// CallCount returns the number of Search calls.
func (m *MockEngine) CallCount() int {
	return int(m.calls.Load())
}

// Queries returns copies of the queries Search received, in call order.
func (m *MockEngine) Queries() []core.SearchQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.SearchQuery, len(m.queries))
	copy(out, m.queries)
	return out
}
