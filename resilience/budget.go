package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/logger"
)

// ErrBudgetExceeded is wrapped by the error returned when the fixture path
// runs out of budget and no passthrough can be used.
var ErrBudgetExceeded = errors.New("fixture budget exceeded")

// Source names the path that produced a result.
type Source string

const (
	SourceCache       Source = "cache"
	SourceFixture     Source = "fixture"
	SourcePassthrough Source = "passthrough"
)

// String returns the source name.
func (s Source) String() string { return string(s) }

// Operation is a caller-supplied unit of work. The context is passed through
// unchanged; the executor never cancels it.
type Operation[T any] func(ctx context.Context) (T, error)

// Outcome describes how a budgeted call settled.
type Outcome[T any] struct {
	Result   T
	TimedOut bool
	Source   Source
	// Elapsed is the wall time of the whole call, fallback included.
	Elapsed time.Duration
}

// Descriptor carries per-call context for logging and an optional budget
// override.
type Descriptor struct {
	// Operation names the call in logs and errors. Defaults to the executor name.
	Operation string
	Route     string
	Method    string
	// Budget overrides the executor budget when positive.
	Budget time.Duration
	// Fields are appended to every log line of the call.
	Fields map[string]any
}

// BudgetConfig configures a BudgetExecutor.
type BudgetConfig struct {
	// Name identifies this executor for logging.
	Name string
	// Budget is the time the fixture path may take before the fallback runs.
	// Zero sends every call straight to the fallback.
	Budget time.Duration
	// EnablePassthrough allows the fallback to run on timeout.
	EnablePassthrough bool
	// LogTimeouts enables slow-call and timeout warnings.
	LogTimeouts bool
	// SlowThreshold is the fraction of the budget above which a successful
	// fixture call is reported as slow.
	SlowThreshold float64
	// MaxInflight caps concurrently running fixture operations. 0 means unlimited.
	MaxInflight int
}

// DefaultBudgetConfig returns sensible defaults.
func DefaultBudgetConfig(name string) BudgetConfig {
	return BudgetConfig{
		Name:              name,
		Budget:            35 * time.Millisecond,
		EnablePassthrough: true,
		LogTimeouts:       true,
		SlowThreshold:     0.8,
	}
}

func (c BudgetConfig) normalized() BudgetConfig {
	if c.Budget < 0 {
		c.Budget = 0
	}
	if c.SlowThreshold <= 0 || c.SlowThreshold > 1 {
		c.SlowThreshold = 0.8
	}
	if c.MaxInflight < 0 {
		c.MaxInflight = 0
	}
	return c
}

// BudgetStats is a snapshot of executor counters.
type BudgetStats struct {
	Executions          int64 `json:"executions"`
	Timeouts            int64 `json:"timeouts"`
	SlowCalls           int64 `json:"slow_calls"`
	FallbackInvocations int64 `json:"fallback_invocations"`
	FallbackFailures    int64 `json:"fallback_failures"`
	PrimaryFailures     int64 `json:"primary_failures"`
	Rejected            int64 `json:"rejected"`
	Inflight            int64 `json:"inflight"`
	// InflightAvailable is the number of free in-flight slots, or -1 when
	// MaxInflight is unlimited.
	InflightAvailable   int64 `json:"inflight_available"`
}

// BudgetExecutor races fixture operations against a time budget and falls
// back to a passthrough operation when the budget runs out.
//
// The race does not cancel the loser: a fixture operation that misses its
// budget keeps running and its result is discarded. Set MaxInflight to bound
// that abandoned work.
type BudgetExecutor struct {
	mu      sync.RWMutex
	config  BudgetConfig
	limiter *inflightLimiter
	log     *logger.Logger

	executions          atomic.Int64
	timeouts            atomic.Int64
	slowCalls           atomic.Int64
	fallbackInvocations atomic.Int64
	fallbackFailures    atomic.Int64
	primaryFailures     atomic.Int64
	rejected            atomic.Int64
	inflight            atomic.Int64
}

// NewBudgetExecutor creates an executor. A nil logger discards output.
func NewBudgetExecutor(config BudgetConfig, log *logger.Logger) *BudgetExecutor {
	if log == nil {
		log = logger.Nop()
	}
	config = config.normalized()
	return &BudgetExecutor{
		config:  config,
		limiter: newInflightLimiter(config.MaxInflight),
		log:     log.WithComponent("budget"),
	}
}

// Config returns the current configuration.
func (e *BudgetExecutor) Config() BudgetConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// UpdateConfig replaces the configuration for subsequent calls. Calls already
// running keep the settings they started with.
func (e *BudgetExecutor) UpdateConfig(config BudgetConfig) {
	config = config.normalized()

	e.mu.Lock()
	defer e.mu.Unlock()
	if config.MaxInflight != e.config.MaxInflight {
		e.limiter = newInflightLimiter(config.MaxInflight)
	}
	e.config = config
}

// Stats returns the current counters.
func (e *BudgetExecutor) Stats() BudgetStats {
	_, limiter := e.snapshot()
	return BudgetStats{
		Executions:          e.executions.Load(),
		Timeouts:            e.timeouts.Load(),
		SlowCalls:           e.slowCalls.Load(),
		FallbackInvocations: e.fallbackInvocations.Load(),
		FallbackFailures:    e.fallbackFailures.Load(),
		PrimaryFailures:     e.primaryFailures.Load(),
		Rejected:            e.rejected.Load(),
		Inflight:            e.inflight.Load(),
		InflightAvailable:   int64(limiter.Available()),
	}
}

// ResetStats zeroes every counter except Inflight, which tracks live work.
func (e *BudgetExecutor) ResetStats() {
	e.executions.Store(0)
	e.timeouts.Store(0)
	e.slowCalls.Store(0)
	e.fallbackInvocations.Store(0)
	e.fallbackFailures.Store(0)
	e.primaryFailures.Store(0)
	e.rejected.Store(0)
}

func (e *BudgetExecutor) snapshot() (BudgetConfig, *inflightLimiter) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config, e.limiter
}

type settled[T any] struct {
	value T
	err   error
}

// ExecuteWithBudget runs primary against the budget.
//
//   - primary settles first with a result: Outcome{Source: fixture}.
//   - the budget runs out first, or primary fails with a timeout error: the
//     fallback runs if it is non-nil and passthrough is enabled, giving
//     Outcome{TimedOut: true, Source: passthrough}. A fallback error is
//     returned unchanged. Without a usable fallback the error is a
//     BUDGET_EXCEEDED AppError wrapping ErrBudgetExceeded.
//   - primary fails with any other error: that error is returned and the
//     fallback is not attempted.
//   - ctx is done first: ctx.Err() is returned.
func ExecuteWithBudget[T any](ctx context.Context, e *BudgetExecutor, primary, fallback Operation[T], d Descriptor) (Outcome[T], error) {
	cfg, limiter := e.snapshot()
	budget := cfg.Budget
	if d.Budget > 0 {
		budget = d.Budget
	}
	if d.Operation == "" {
		d.Operation = cfg.Name
	}

	e.executions.Add(1)
	start := time.Now()

	if primary == nil {
		return Outcome[T]{Source: SourceFixture}, goerrors.Validation("fixture operation is required")
	}

	if budget <= 0 {
		return exhausted(ctx, e, cfg, fallback, d, budget, start, ErrBudgetExceeded)
	}

	release, ok := limiter.tryAcquire()
	if !ok {
		e.rejected.Add(1)
		return exhausted(ctx, e, cfg, fallback, d, budget, start, ErrInflightFull)
	}

	done := make(chan settled[T], 1)
	e.inflight.Add(1)
	go func() {
		r := runPrimary(ctx, primary)
		e.inflight.Add(-1)
		release()
		done <- r
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case r := <-done:
		elapsed := time.Since(start)
		if r.err != nil {
			if IsTimeout(r.err) {
				return exhausted(ctx, e, cfg, fallback, d, budget, start, r.err)
			}
			e.primaryFailures.Add(1)
			e.log.Debug("fixture operation failed", logger.MergeWithError(
				callFields(d, budget, elapsed), goerrors.PrimaryFailed(d.Operation, r.err)))
			return Outcome[T]{Source: SourceFixture, Elapsed: elapsed}, r.err
		}
		e.observeSlow(cfg, d, budget, elapsed)
		return Outcome[T]{Result: r.value, Source: SourceFixture, Elapsed: elapsed}, nil

	case <-timer.C:
		return exhausted(ctx, e, cfg, fallback, d, budget, start, ErrBudgetExceeded)

	case <-ctx.Done():
		return Outcome[T]{Source: SourceFixture, Elapsed: time.Since(start)}, ctx.Err()
	}
}

// runPrimary calls op, turning a panic into an INTERNAL_ERROR.
func runPrimary[T any](ctx context.Context, op Operation[T]) settled[T] {
	return runGuarded(ctx, "fixture", op)
}

// runFallback calls op, turning a panic into an INTERNAL_ERROR that is then
// handled like any other passthrough failure.
func runFallback[T any](ctx context.Context, op Operation[T]) settled[T] {
	return runGuarded(ctx, "passthrough", op)
}

func runGuarded[T any](ctx context.Context, name string, op Operation[T]) (s settled[T]) {
	defer func() {
		if r := recover(); r != nil {
			s = settled[T]{err: goerrors.Internal(fmt.Errorf("%s operation panicked: %v", name, r))}
		}
	}()
	v, err := op(ctx)
	return settled[T]{value: v, err: err}
}

// exhausted handles a fixture call that ran out of budget. cause records why:
// the timer, a refused in-flight slot, or a timeout reported by primary.
func exhausted[T any](ctx context.Context, e *BudgetExecutor, cfg BudgetConfig, fallback Operation[T], d Descriptor, budget time.Duration, start time.Time, cause error) (Outcome[T], error) {
	e.timeouts.Add(1)
	fields := callFields(d, budget, time.Since(start))
	if cfg.LogTimeouts {
		e.log.Warn("fixture budget exceeded", logger.MergeWithError(fields, cause))
	}

	if fallback == nil || !cfg.EnablePassthrough {
		err := goerrors.BudgetExceeded(d.Operation, budget).WithCause(ErrBudgetExceeded)
		if cause != ErrBudgetExceeded {
			err.WithDetail("reason", cause.Error())
		}
		return Outcome[T]{TimedOut: true, Source: SourceFixture, Elapsed: time.Since(start)}, err
	}

	e.fallbackInvocations.Add(1)
	r := runFallback(ctx, fallback)
	elapsed := time.Since(start)
	if r.err != nil {
		e.fallbackFailures.Add(1)
		e.log.Error("passthrough failed after fixture timeout", logger.MergeWithError(
			callFields(d, budget, elapsed), goerrors.FallbackFailed(d.Operation, r.err)))
		return Outcome[T]{TimedOut: true, Source: SourcePassthrough, Elapsed: elapsed}, r.err
	}
	return Outcome[T]{Result: r.value, TimedOut: true, Source: SourcePassthrough, Elapsed: elapsed}, nil
}

func (e *BudgetExecutor) observeSlow(cfg BudgetConfig, d Descriptor, budget, elapsed time.Duration) {
	limit := time.Duration(float64(budget) * cfg.SlowThreshold)
	if elapsed < limit {
		return
	}
	e.slowCalls.Add(1)
	if cfg.LogTimeouts {
		e.log.Warn("slow fixture operation", callFields(d, budget, elapsed))
	}
}

func callFields(d Descriptor, budget, elapsed time.Duration) map[string]any {
	fields := logger.DurationFields(d.Operation, elapsed)
	fields[logger.FieldBudget] = budget.Milliseconds()
	if d.Route != "" {
		fields[logger.FieldRoute] = d.Route
	}
	if d.Method != "" {
		fields[logger.FieldMethod] = d.Method
	}
	for k, v := range d.Fields {
		fields[k] = v
	}
	return fields
}

// IsTimeout reports whether err describes an operation running out of time:
// ErrBudgetExceeded, context.DeadlineExceeded, or an AppError with a timeout
// code.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBudgetExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	appErr, ok := goerrors.AsAppError(err)
	return ok && goerrors.IsTimeoutCode(appErr.Code)
}
