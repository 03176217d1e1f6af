package health

import (
	"context"
	"sync"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/metrics"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeFunc CheckType = "func"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config contains common configuration for all health checks
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration

	// Timeout is the maximum time to wait for a health check to complete
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking as unhealthy
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		Retries:  3,
	}
}

// Status tracks the health of one probed backend over time
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful checks
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time

	// LastResult is the result of the last health check
	LastResult Result

	// Healthy indicates if the backend is currently considered healthy
	Healthy bool
}

// NewStatus creates a new Status with default values
func NewStatus() *Status {
	return &Status{
		Healthy: true, // Assume healthy until proven otherwise
	}
}

// Update updates the status based on a new health check result
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0

		// Mark as healthy after first success
		s.Healthy = true
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0

		// Mark as unhealthy after reaching retry threshold
		if s.ConsecutiveFailures >= config.Retries {
			s.Healthy = false
		}
	}
}

// Registry runs named checkers on an interval and mirrors each outcome
// into the component map served by the metrics health endpoints. The run
// tool registers its backends here so /ready reflects whether the
// warehouse, object store and provider feed are reachable mid-run.
type Registry struct {
	cfg      Config
	mu       sync.RWMutex
	checkers map[string]Checker
	statuses map[string]*Status
	stopCh   chan struct{}
}

// NewRegistry creates an empty registry. Zero config fields fall back to
// the defaults.
func NewRegistry(cfg Config) *Registry {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = def.Retries
	}
	return &Registry{
		cfg:      cfg,
		checkers: make(map[string]Checker),
		statuses: make(map[string]*Status),
		stopCh:   make(chan struct{}),
	}
}

// Register adds a checker under name. The component starts out healthy;
// the first probe decides its real state.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
	r.statuses[name] = NewStatus()
	metrics.RegisterComponent(name, true, "registered")
}

// Status returns a copy of the tracked status for name.
func (r *Registry) Status(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.statuses[name]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Start begins the probe loop: one immediate pass, then one per interval
// until Stop or context cancellation.
func (r *Registry) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop stops the probe loop
func (r *Registry) Stop() {
	close(r.stopCh)
}

func (r *Registry) run(ctx context.Context) {
	r.RunChecks(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunChecks(ctx)
		}
	}
}

// RunChecks probes every registered checker once and updates the
// component map. Exposed so callers can force a pass, for example right
// before declaring readiness.
func (r *Registry) RunChecks(ctx context.Context) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	for _, name := range names {
		r.runCheck(ctx, name)
	}
}

func (r *Registry) runCheck(ctx context.Context, name string) {
	r.mu.RLock()
	checker := r.checkers[name]
	status := r.statuses[name]
	r.mu.RUnlock()
	if checker == nil {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	result := checker.Check(cctx)
	cancel()

	r.mu.Lock()
	status.Update(result, r.cfg)
	healthy, message := status.Healthy, result.Message
	r.mu.Unlock()

	metrics.UpdateComponent(name, healthy, message)
}
