package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/engine/mock"
	"github.com/poiesic/fathom/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(urls ...string) []core.ResultItem {
	out := make([]core.ResultItem, 0, len(urls))
	for _, u := range urls {
		out = append(out, core.ResultItem{Title: "title " + u, URL: u, Score: 0.5})
	}
	return out
}

func setup(t *testing.T, engines ...*mock.MockEngine) (*registry.Registry, *Dispatcher) {
	t.Helper()
	reg, err := registry.New(registry.Config{FailureThreshold: 3})
	require.NoError(t, err)
	for _, e := range engines {
		require.NoError(t, reg.Register(e))
	}

	d, err := New(reg, WithPoolSize(4), WithEngineTimeout(50*time.Millisecond), WithDeadline(time.Second))
	require.NoError(t, err)
	t.Cleanup(d.Release)
	return reg, d
}

func failures(t *testing.T, reg *registry.Registry, name string) int {
	t.Helper()
	h, ok := reg.Health(name)
	require.True(t, ok)
	return h.ConsecutiveFailures
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Equal(t, ErrRegistryRequired, err)

	reg, err := registry.New(registry.Config{})
	require.NoError(t, err)

	_, err = New(reg, WithRetries(0, time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	d, err := New(reg, WithLogger(nil))
	require.NoError(t, err)
	defer d.Release()
	assert.GreaterOrEqual(t, d.poolSize, 4)
	assert.Equal(t, DefaultEngineTimeout, d.engineTimeout)
	assert.Equal(t, DefaultDeadline, d.deadline)
}

func TestBatch_PartialFailure(t *testing.T) {
	a := mock.NewMockEngine("A",
		core.ResultItem{Title: "asyncio", URL: "https://docs.python.org/asyncio", Score: 0.8},
		core.ResultItem{Title: "async tutorial", URL: "https://realpython.com/async", Score: 0.6},
	)
	b := mock.NewSlowEngine("B", 500*time.Millisecond, items("https://b.example")...)
	reg, d := setup(t, a, b)

	sets := d.Batch(context.Background(), core.NewSearchQuery("python async"), Plan{})

	require.Len(t, sets, 1)
	assert.Equal(t, "A", sets[0].Source)
	assert.Len(t, sets[0].Items, 2)
	assert.Equal(t, 0, failures(t, reg, "A"))
	assert.Equal(t, 1, failures(t, reg, "B"))
}

func TestBatch_SelectionOrder(t *testing.T) {
	slow := mock.NewSlowEngine("first", 20*time.Millisecond, items("https://1.example")...)
	fast := mock.NewMockEngine("second", items("https://2.example")...)
	_, d := setup(t, slow, fast)

	sets := d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{})
	require.Len(t, sets, 2)
	assert.Equal(t, "first", sets[0].Source)
	assert.Equal(t, "second", sets[1].Source)
}

func TestBatch_FailureKinds(t *testing.T) {
	errEngine := mock.NewFailingEngine("error", errors.New("http 503"))
	panicky := mock.NewMockEngine("panic")
	panicky.Panic = "parser exploded"
	nilSet := mock.NewMockEngine("nil")
	nilSet.SearchFunc = func(ctx context.Context, q *core.SearchQuery) (*core.ResultSet, error) {
		return nil, nil
	}
	malformed := mock.NewMockEngine("malformed", core.ResultItem{Content: "no url"})
	empty := mock.NewMockEngine("empty")
	reg, d := setup(t, errEngine, panicky, nilSet, malformed, empty)

	sets := d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{})

	require.Len(t, sets, 1, "an empty result set is a success")
	assert.Equal(t, "empty", sets[0].Source)
	for _, name := range []string{"error", "panic", "nil", "malformed"} {
		assert.Equal(t, 1, failures(t, reg, name), name)
	}
	assert.Equal(t, 0, failures(t, reg, "empty"))
}

func TestBatch_TimeoutIgnoringContext(t *testing.T) {
	stubborn := mock.NewSlowEngine("stubborn", 300*time.Millisecond, items("https://s.example")...)
	stubborn.IgnoreContext = true
	reg, d := setup(t, stubborn)

	start := time.Now()
	sets := d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{})

	assert.Empty(t, sets)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, 1, failures(t, reg, "stubborn"))
}

func TestBatch_GlobalDeadline(t *testing.T) {
	slow := mock.NewSlowEngine("slow", time.Second, items("https://slow.example")...)
	slow.IgnoreContext = true
	fast := mock.NewMockEngine("fast", items("https://fast.example")...)
	reg, d := setup(t, slow, fast)

	start := time.Now()
	sets := d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{
		EngineTimeout: 5 * time.Second,
		Deadline:      50 * time.Millisecond,
	})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, sets, 1)
	assert.Equal(t, "fast", sets[0].Source)
	assert.Equal(t, 1, failures(t, reg, "slow"), "pending engine recorded once as timeout")
}

func TestBatch_CallerCancelNotRecorded(t *testing.T) {
	slow := mock.NewSlowEngine("slow", time.Second, items("https://slow.example")...)
	reg, d := setup(t, slow)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sets := d.Batch(ctx, core.NewSearchQuery("q"), Plan{EngineTimeout: 5 * time.Second})
	assert.Empty(t, sets)
	assert.Equal(t, 0, failures(t, reg, "slow"))
}

func TestBatch_PlanSelection(t *testing.T) {
	a := mock.NewMockEngine("A", items("https://a.example")...)
	b := mock.NewMockEngine("B", items("https://b.example")...)
	reg, d := setup(t, a, b)

	sets := d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{Engines: []string{"B"}})
	require.Len(t, sets, 1)
	assert.Equal(t, "B", sets[0].Source)
	assert.Equal(t, 0, a.CallCount())

	assert.Empty(t, d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{Engines: []string{"nope"}}))

	for range 3 {
		reg.RecordOutcome("A", registry.Failure)
	}
	sets = d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{})
	require.Len(t, sets, 1)
	assert.Equal(t, "B", sets[0].Source)

	sets = d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{Force: true})
	require.Len(t, sets, 2)
	h, _ := reg.Health("A")
	assert.False(t, h.TemporarilyDisabled, "forced probe success re-enables")
}

func TestBatch_PageSizeClampedPerEngine(t *testing.T) {
	small := mock.NewMockEngine("small", items("https://s.example")...)
	small.Meta.MaxPageSize = 5
	_, d := setup(t, small)

	q := core.NewSearchQuery("q")
	q.PageSize = 50
	d.Batch(context.Background(), q, Plan{})

	queries := small.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, 5, queries[0].PageSize)
}

func TestBatch_RetryReportsOneOutcome(t *testing.T) {
	var calls atomic.Int32
	flaky := mock.NewMockEngine("flaky")
	flaky.SearchFunc = func(ctx context.Context, q *core.SearchQuery) (*core.ResultSet, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return &core.ResultSet{Items: items("https://flaky.example")}, nil
	}
	broken := mock.NewFailingEngine("broken", errors.New("down"))

	reg, err := registry.New(registry.Config{FailureThreshold: 10})
	require.NoError(t, err)
	require.NoError(t, reg.Register(flaky))
	require.NoError(t, reg.Register(broken))
	d, err := New(reg, WithRetries(3, time.Millisecond))
	require.NoError(t, err)
	defer d.Release()

	sets := d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{})
	require.Len(t, sets, 1)
	assert.Equal(t, "flaky", sets[0].Source)
	assert.Equal(t, 3, flaky.CallCount())
	assert.Equal(t, 3, broken.CallCount())
	assert.Equal(t, 0, failures(t, reg, "flaky"))
	assert.Equal(t, 1, failures(t, reg, "broken"))
}

func TestStream(t *testing.T) {
	fast := mock.NewMockEngine("fast", items("https://fast.example")...)
	slow := mock.NewSlowEngine("slow", 20*time.Millisecond, items("https://slow.example")...)
	failing := mock.NewFailingEngine("failing", errors.New("boom"))
	reg, d := setup(t, slow, fast, failing)

	seq := d.Stream(context.Background(), core.NewSearchQuery("q"), Plan{})

	var got []string
	for name, rs := range seq {
		assert.Equal(t, name, rs.Source)
		got = append(got, name)
	}
	assert.Equal(t, []string{"fast", "slow"}, got, "completion order")
	assert.Equal(t, 1, failures(t, reg, "failing"))

	t.Run("not restartable", func(t *testing.T) {
		count := 0
		for range seq {
			count++
		}
		assert.Zero(t, count)
		assert.Equal(t, 1, fast.CallCount())
	})
}

func TestStream_EarlyStop(t *testing.T) {
	fast := mock.NewMockEngine("fast", items("https://fast.example")...)
	slow := mock.NewSlowEngine("slow", 200*time.Millisecond, items("https://slow.example")...)
	reg, d := setup(t, fast, slow)

	start := time.Now()
	for name := range d.Stream(context.Background(), core.NewSearchQuery("q"), Plan{EngineTimeout: time.Second}) {
		assert.Equal(t, "fast", name)
		break
	}

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 0, failures(t, reg, "slow"), "cancelled engines are not recorded")
}

func TestStream_Deadline(t *testing.T) {
	fast := mock.NewMockEngine("fast", items("https://fast.example")...)
	slow := mock.NewSlowEngine("slow", time.Second, items("https://slow.example")...)
	reg, d := setup(t, fast, slow)

	var got []string
	for name := range d.Stream(context.Background(), core.NewSearchQuery("q"), Plan{
		EngineTimeout: 5 * time.Second,
		Deadline:      50 * time.Millisecond,
	}) {
		got = append(got, name)
	}

	assert.Equal(t, []string{"fast"}, got)
	assert.Equal(t, 1, failures(t, reg, "slow"))
}

func TestRelease(t *testing.T) {
	e := mock.NewMockEngine("A", items("https://a.example")...)
	reg, d := setup(t, e)
	d.Release()

	sets := d.Batch(context.Background(), core.NewSearchQuery("q"), Plan{})
	assert.Empty(t, sets)
	assert.Equal(t, 1, failures(t, reg, "A"))
}

func TestBatch_ReleasedPoolLeavesHealthAlone(t *testing.T) {
	a := mock.NewMockEngine("A", items("https://a.example")...)
	reg, d := setup(t, a)
	d.Release()

	for range 5 {
		assert.Empty(t, d.Batch(context.Background(), core.NewSearchQuery("go"), Plan{}))
	}
	assert.Zero(t, failures(t, reg, "A"))
	assert.Zero(t, a.CallCount())

	h, ok := reg.Health("A")
	require.True(t, ok)
	assert.False(t, h.TemporarilyDisabled)
}
