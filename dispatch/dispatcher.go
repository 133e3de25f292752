package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/engine"
	"github.com/poiesic/fathom/registry"
)

const (
	// DefaultEngineTimeout bounds a single engine call.
	DefaultEngineTimeout = 10 * time.Second

	// DefaultDeadline bounds a whole dispatch.
	DefaultDeadline = 30 * time.Second
)

// Plan describes one dispatch. Zero values fall back to the dispatcher defaults.
type Plan struct {
	Engines       []string // Requested engine names; empty means every eligible engine
	EngineTimeout time.Duration
	Deadline      time.Duration
	Force         bool // Include temporarily disabled engines
}

// Dispatcher runs engine calls concurrently on a worker pool and reports
// every completed call to the registry.
type Dispatcher struct {
	registry      *registry.Registry
	pool          *ants.Pool
	poolSize      int
	engineTimeout time.Duration
	deadline      time.Duration
	attempts      int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithPoolSize sets the worker pool size.
// Default is runtime.NumCPU(), with a minimum of 4.
func WithPoolSize(size int) Option {
	return func(d *Dispatcher) error {
		if size < 1 {
			size = 1
		}
		d.poolSize = size
		return nil
	}
}

// WithEngineTimeout sets the default per-engine timeout.
func WithEngineTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout > 0 {
			d.engineTimeout = timeout
		}
		return nil
	}
}

// WithDeadline sets the default global deadline of a dispatch.
func WithDeadline(deadline time.Duration) Option {
	return func(d *Dispatcher) error {
		if deadline > 0 {
			d.deadline = deadline
		}
		return nil
	}
}

// WithRetries sets how many times an engine call is attempted and the base
// backoff delay between attempts. Default is a single attempt.
func WithRetries(attempts int, baseDelay time.Duration) Option {
	return func(d *Dispatcher) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		d.attempts = attempts
		d.retryDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger.With("component", "dispatcher")
		return nil
	}
}

// New creates a dispatcher. Call Release when done to stop the worker pool.
func New(reg *registry.Registry, opts ...Option) (*Dispatcher, error) {
	if reg == nil {
		return nil, ErrRegistryRequired
	}

	d := &Dispatcher{
		registry:      reg,
		poolSize:      max(runtime.NumCPU(), 4),
		engineTimeout: DefaultEngineTimeout,
		deadline:      DefaultDeadline,
		attempts:      1,
		retryDelay:    100 * time.Millisecond,
		logger:        slog.Default().With("component", "dispatcher"),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(d.poolSize,
		ants.WithLogger(antsLoggerAdapter{logger: d.logger}),
		ants.WithPanicHandler(func(p any) {
			d.logger.Error("worker panic", "panic", p)
		}),
	)
	if err != nil {
		return nil, err
	}
	d.pool = pool

	return d, nil
}

// Release stops the worker pool. Dispatches after Release record every engine as failed.
func (d *Dispatcher) Release() {
	if d.pool != nil {
		d.pool.Release()
	}
}

// completion is the result of one engine call as seen by the collector.
type completion struct {
	index  int
	name   string
	result *core.ResultSet
	err    error
}

// Batch runs the selected engines and waits until all of them answer or the
// deadline elapses. Engines still pending at the deadline are recorded as
// timed out and abandoned. Successful sets are returned in selection order.
func (d *Dispatcher) Batch(ctx context.Context, query core.SearchQuery, plan Plan) []*core.ResultSet {
	engines := d.registry.Select(plan.Engines, plan.Force)
	if len(engines) == 0 {
		return nil
	}

	slots := make([]*core.ResultSet, len(engines))
	d.collect(ctx, query, plan, engines, func(c completion) bool {
		if c.err == nil {
			slots[c.index] = c.result
		}
		return true
	})

	sets := make([]*core.ResultSet, 0, len(engines))
	for _, rs := range slots {
		if rs != nil {
			sets = append(sets, rs)
		}
	}
	return sets
}

// Stream runs the selected engines and yields each successful set, keyed by
// engine name, as soon as it completes. The sequence can be ranged over once.
// Stopping early cancels the remaining calls without recording them; at the
// deadline the pending engines are recorded as timed out and the sequence ends.
func (d *Dispatcher) Stream(ctx context.Context, query core.SearchQuery, plan Plan) iter.Seq2[string, *core.ResultSet] {
	var consumed atomic.Bool
	return func(yield func(string, *core.ResultSet) bool) {
		if consumed.Swap(true) {
			return
		}
		engines := d.registry.Select(plan.Engines, plan.Force)
		if len(engines) == 0 {
			return
		}
		d.collect(ctx, query, plan, engines, func(c completion) bool {
			if c.err != nil {
				return true
			}
			return yield(c.name, c.result)
		})
	}
}

// collect launches every engine and hands completions to emit until all are
// in, emit returns false, the deadline elapses, or ctx ends. Outcomes are only
// recorded here, so abandoned calls never report twice.
func (d *Dispatcher) collect(ctx context.Context, query core.SearchQuery, plan Plan, engines []engine.Engine, emit func(completion) bool) {
	timeout := d.engineTimeout
	if plan.EngineTimeout > 0 {
		timeout = plan.EngineTimeout
	}
	deadline := d.deadline
	if plan.Deadline > 0 {
		deadline = plan.Deadline
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := make(map[string]bool, len(engines))
	for _, e := range engines {
		pending[engine.Name(e)] = true
	}

	results := make(chan completion, len(engines))
	go d.submit(runCtx, query, timeout, engines, results)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for len(pending) > 0 {
		select {
		case c := <-results:
			delete(pending, c.name)
			d.record(c)
			if !emit(c) {
				return
			}
		case <-timer.C:
			for name := range pending {
				d.logger.Warn("engine abandoned at deadline", "engine", name, "deadline", deadline)
				d.registry.RecordOutcome(name, registry.Timeout)
			}
			return
		case <-ctx.Done():
			d.logger.Debug("dispatch cancelled", "pending", len(pending), "err", ctx.Err())
			return
		}
	}
}

// submit queues one pool task per engine. results must have room for every engine.
func (d *Dispatcher) submit(ctx context.Context, query core.SearchQuery, timeout time.Duration, engines []engine.Engine, results chan<- completion) {
	for i, e := range engines {
		name := engine.Name(e)
		if ctx.Err() != nil {
			return
		}
		err := d.pool.Submit(func() {
			rs, err := d.call(ctx, e, query.ForEngine(e.Metadata()), timeout)
			results <- completion{index: i, name: name, result: rs, err: err}
		})
		switch {
		case errors.Is(err, ants.ErrPoolClosed):
			// Not the engine's fault, so record leaves its health alone.
			results <- completion{index: i, name: name, err: fmt.Errorf("%w: %w", ErrDispatcherClosed, err)}
		case err != nil:
			results <- completion{index: i, name: name, err: core.NewEngineFailure(name, "task rejected", err)}
		}
	}
}

// call runs one engine with retries. Every attempt gets its own timeout.
func (d *Dispatcher) call(ctx context.Context, e engine.Engine, query core.SearchQuery, timeout time.Duration) (*core.ResultSet, error) {
	var rs *core.ResultSet
	backoff := Backoff{Attempts: d.attempts, Delay: d.retryDelay, Logger: d.logger.With("engine", engine.Name(e))}
	err := backoff.Do(ctx, func() error {
		var err error
		rs, err = d.attempt(ctx, e, query, timeout)
		return err
	})
	return rs, err
}

type reply struct {
	result *core.ResultSet
	err    error
}

// attempt makes a single engine call. The adapter runs in its own goroutine so
// the timeout holds even when it ignores its context. A panic becomes a failure.
func (d *Dispatcher) attempt(ctx context.Context, e engine.Engine, query core.SearchQuery, timeout time.Duration) (*core.ResultSet, error) {
	name := engine.Name(e)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	replies := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				replies <- reply{err: core.NewEngineFailure(name, fmt.Sprintf("panic: %v", p), nil)}
			}
		}()
		rs, err := e.Search(callCtx, &query)
		replies <- reply{result: rs, err: err}
	}()

	select {
	case r := <-replies:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if r.err != nil {
			var engErr *core.EngineError
			if errors.As(r.err, &engErr) {
				return nil, r.err
			}
			if callCtx.Err() != nil {
				return nil, core.NewEngineTimeout(name, r.err)
			}
			return nil, core.NewEngineFailure(name, "provider error", r.err)
		}
		if err := checkResultSet(r.result); err != nil {
			return nil, core.NewEngineFailure(name, err.Error(), nil)
		}
		r.result.Source = name
		if r.result.Elapsed == 0 {
			r.result.Elapsed = time.Since(started)
		}
		return r.result, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewEngineTimeout(name, callCtx.Err())
	}
}

// checkResultSet rejects answers that carry nothing usable.
func checkResultSet(rs *core.ResultSet) error {
	if rs == nil {
		return errors.New("empty response")
	}
	if len(rs.Items) == 0 {
		return nil
	}
	for _, item := range rs.Items {
		if item.URL != "" || item.Title != "" {
			return nil
		}
	}
	return errors.New("malformed response: no item has a url or title")
}

// record reports a completion to the registry. Cancelled calls and calls
// refused by a released pool are not the engine's fault and are not recorded.
func (d *Dispatcher) record(c completion) {
	if c.err == nil {
		d.logger.Debug("engine answered", "engine", c.name, "items", len(c.result.Items), "elapsed", c.result.Elapsed)
		d.registry.RecordOutcome(c.name, registry.Success)
		return
	}

	var engErr *core.EngineError
	if !errors.As(c.err, &engErr) {
		d.logger.Debug("engine call not recorded", "engine", c.name, "err", c.err)
		return
	}

	outcome := registry.Failure
	if errors.Is(c.err, core.ErrEngineTimeout) {
		outcome = registry.Timeout
	}
	d.logger.Warn("engine call failed", "engine", c.name, "outcome", outcome.String(), "err", c.err)
	d.registry.RecordOutcome(c.name, outcome)
}

// antsLoggerAdapter adapts slog.Logger to the ants.Logger interface
type antsLoggerAdapter struct {
	logger *slog.Logger
}

func (a antsLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
