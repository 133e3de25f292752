package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/engine"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that disables an engine.
	DefaultFailureThreshold = 5

	// DefaultCooldown is how long a disabled engine waits after its last failure before it is re-enabled.
	DefaultCooldown = 5 * time.Minute
)

// Outcome is the result of one engine call as reported by the dispatcher.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config holds the health policy.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultConfig returns the default health policy.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
	}
}

// entry is one registered engine. health is guarded by mu.
type entry struct {
	engine engine.Engine
	meta   core.EngineMetadata

	mu     sync.Mutex
	health core.EngineHealth
}

// Registry holds the registered engines and their health.
// It is safe for concurrent use; health updates are serialized per engine.
type Registry struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// Option configures a Registry.
type Option func(*Registry) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "registry")
		return nil
	}
}

// WithClock sets the time source used for failure stamps and cooldowns.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) error {
		if now != nil {
			r.now = now
		}
		return nil
	}
}

// New creates an empty registry. Zero config values fall back to the defaults.
func New(cfg Config, opts ...Option) (*Registry, error) {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.FailureThreshold < 0 {
		return nil, fmt.Errorf("%w: %w: failure threshold %d", core.ErrConfig, core.ErrInvalidThreshold, cfg.FailureThreshold)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("%w: %w: cooldown %s", core.ErrConfig, core.ErrInvalidThreshold, cfg.Cooldown)
	}

	r := &Registry{
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default().With("component", "registry"),
		entries: make(map[string]*entry),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds an engine. New engines start enabled and healthy.
func (r *Registry) Register(e engine.Engine) error {
	if e == nil {
		return ErrInvalidEngine
	}
	meta := e.Metadata()
	if meta.Name == "" {
		return ErrInvalidEngine
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[meta.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEngine, meta.Name)
	}

	r.entries[meta.Name] = &entry{
		engine: e,
		meta:   meta,
		health: core.EngineHealth{Enabled: true},
	}
	r.order = append(r.order, meta.Name)
	r.logger.Debug("registered engine", "engine", meta.Name)
	return nil
}

// Select returns the eligible engines in registration order.
//
// An engine is eligible when it is enabled and not temporarily disabled.
// A temporarily disabled engine whose cooldown has elapsed is re-enabled here.
// When requested is non-empty only those names are considered; unknown names
// are ignored. force skips the temporarily-disabled check but never selects an
// engine that was switched off with SetEnabled.
func (r *Registry) Select(requested []string, force bool) []engine.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var wanted map[string]bool
	if len(requested) > 0 {
		wanted = make(map[string]bool, len(requested))
		for _, name := range requested {
			wanted[name] = true
		}
	}

	now := r.now()
	selected := make([]engine.Engine, 0, len(r.order))
	for _, name := range r.order {
		if wanted != nil && !wanted[name] {
			continue
		}
		if r.entries[name].eligible(now, r.cfg.Cooldown, force, r.logger) {
			selected = append(selected, r.entries[name].engine)
		}
	}
	return selected
}

func (e *entry) eligible(now time.Time, cooldown time.Duration, force bool, logger *slog.Logger) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.health.Enabled {
		return false
	}
	if e.health.TemporarilyDisabled && now.Sub(e.health.LastFailureTime) >= cooldown {
		e.health.TemporarilyDisabled = false
		logger.Info("engine re-enabled after cooldown", "engine", e.meta.Name, "failures", e.health.ConsecutiveFailures)
	}
	return force || !e.health.TemporarilyDisabled
}

// RecordOutcome updates an engine's health after a call.
// Success clears the failure count; Failure and Timeout increment it and
// disable the engine once the threshold is reached. Unknown names are ignored.
func (r *Registry) RecordOutcome(name string, outcome Outcome) {
	e := r.lookup(name)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if outcome == Success {
		if e.health.TemporarilyDisabled {
			r.logger.Info("engine recovered", "engine", name)
		}
		e.health.ConsecutiveFailures = 0
		e.health.TemporarilyDisabled = false
		return
	}

	e.health.ConsecutiveFailures++
	e.health.LastFailureTime = r.now()
	if e.health.ConsecutiveFailures >= r.cfg.FailureThreshold && !e.health.TemporarilyDisabled {
		e.health.TemporarilyDisabled = true
		r.logger.Warn("engine temporarily disabled",
			"engine", name,
			"outcome", outcome.String(),
			"failures", e.health.ConsecutiveFailures)
	}
}

// Health returns a snapshot of an engine's health.
func (r *Registry) Health(name string) (core.EngineHealth, bool) {
	e := r.lookup(name)
	if e == nil {
		return core.EngineHealth{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health, true
}

// SetEnabled switches an engine on or off. A disabled engine is never selected, even when forced.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	e := r.lookup(name)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	e.mu.Lock()
	e.health.Enabled = enabled
	e.mu.Unlock()
	return nil
}

// Reset restores an engine to a healthy, enabled state.
func (r *Registry) Reset(name string) {
	e := r.lookup(name)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.health = core.EngineHealth{Enabled: true}
	e.mu.Unlock()
}

// Names returns the registered engine names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Metadata returns the metadata of a registered engine.
func (r *Registry) Metadata(name string) (core.EngineMetadata, bool) {
	e := r.lookup(name)
	if e == nil {
		return core.EngineMetadata{}, false
	}
	return e.meta, true
}

func (r *Registry) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}
