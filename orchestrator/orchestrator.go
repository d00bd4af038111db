package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/kbukum/fixturekit/cache"
	goerrors "github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/observability"
	"github.com/kbukum/fixturekit/resilience"
	"github.com/kbukum/fixturekit/scenario"
)

// Descriptor identifies a request for caching and logging.
type Descriptor struct {
	// Route is the request path. A query string on it is used as Params when
	// Params is empty.
	Route  string
	Method string
	// Params is the raw or canonical query string.
	Params string
	// EnableCache overrides the cache for this call when non-nil. It can only
	// narrow the global switch, never widen it.
	EnableCache *bool
	// TTL overrides the default cache TTL when positive.
	TTL time.Duration
}

// Response is the result of ExecuteRequest with its provenance.
type Response[T any] struct {
	Result    T
	FromCache bool
	TimedOut  bool
	Source    resilience.Source
	// Latency covers the whole call; for a cache hit only the lookup.
	Latency time.Duration
}

// Option configures optional Orchestrator behaviour.
type Option func(*options)

type options struct {
	log         *logger.Logger
	instruments *observability.Instruments
	tracer      trace.Tracer
	now         func() time.Time
}

// WithLogger sets the logger. The default is the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithInstruments records metrics on ins. The default records nothing.
func WithInstruments(ins *observability.Instruments) Option {
	return func(o *options) { o.instruments = ins }
}

// WithTracer sets the tracer. The default is the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithClock replaces time.Now for cache expiry, latency and uptime.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Orchestrator puts a response cache in front of a budgeted fixture call with
// passthrough fallback, and tracks what happened.
//
// Each call reads the cache, then runs the executor, then writes the cache,
// then updates metrics. Only fixture results that beat the budget are cached.
type Orchestrator[T any] struct {
	mu     sync.RWMutex
	config Config

	scenarios   scenario.Provider
	cache       *cache.Cache[T]
	executor    *resilience.BudgetExecutor
	flight      singleflight.Group
	counters    counters
	log         *logger.Logger
	instruments *observability.Instruments
	tracer      trace.Tracer
	now         func() time.Time
	started     time.Time

	lifecycle sync.Mutex
	janitor   *janitor
}

// New creates an orchestrator and starts its background sweep. Out-of-range
// fields of cfg are replaced by defaults and logged. Call Destroy to stop the
// sweep.
func New[T any](cfg Config, scenarios scenario.Provider, opts ...Option) *Orchestrator[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.GetGlobalLogger()
	}
	if o.instruments == nil {
		o.instruments = observability.NopInstruments()
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer(observability.InstrumentationName)
	}
	if scenarios == nil {
		scenarios = scenario.Static{}
	}

	log := o.log.WithComponent("orchestrator")
	logCorrections(log, cfg.Normalize())

	orc := &Orchestrator[T]{
		config:    cfg,
		scenarios: scenarios,
		cache: cache.New[T](cache.Config{
			MaxEntries: cfg.CacheMaxEntries,
			DefaultTTL: cfg.CacheDefaultTTL,
		}, cache.WithClock(o.now)),
		executor:    resilience.NewBudgetExecutor(cfg.budgetConfig(), o.log),
		log:         log,
		instruments: o.instruments,
		tracer:      o.tracer,
		now:         o.now,
		started:     o.now(),
	}
	orc.ensureJanitor()
	return orc
}

// ExecuteRequest serves a request from the cache or, on a miss, from the
// fixture path raced against the budget with passthroughOp as the fallback.
//
// A cache hit never runs either operation and never counts as a timeout.
// Errors from the fixture path other than timeouts, errors from the
// passthrough, and timeouts without a usable passthrough are logged and
// returned.
func (o *Orchestrator[T]) ExecuteRequest(ctx context.Context, fixtureOp, passthroughOp resilience.Operation[T], d Descriptor) (Response[T], error) {
	start := o.now()
	cfg := o.GetConfig()
	sc := o.scenarios.Current()
	key := cache.NewKey(d.Route, d.Params, sc)
	requestID := uuid.NewString()

	ctx, span := o.tracer.Start(ctx, observability.SpanExecuteRequest, trace.WithAttributes(
		attribute.String(observability.AttrRequestID, requestID),
		attribute.String(observability.AttrRoute, key.Route),
		attribute.String(observability.AttrMethod, d.Method),
		attribute.String(observability.AttrScenario, sc.Name),
		attribute.Int64(observability.AttrScenarioSeed, sc.Seed),
	))
	defer span.End()

	fields := logger.Fields(
		logger.FieldRequestID, requestID,
		logger.FieldRoute, key.Route,
		logger.FieldMethod, d.Method,
		logger.FieldScenario, sc.Name,
		logger.FieldSeed, sc.Seed,
	)

	useCache := cfg.CacheEnabled && (d.EnableCache == nil || *d.EnableCache)
	if useCache {
		if v, ok := o.cache.Get(key); ok {
			latency := o.now().Sub(start)
			o.counters.hit(latency)
			o.instruments.RecordCacheLookup(ctx, true)
			o.instruments.RecordOutcome(ctx, resilience.SourceCache.String(), false, latency)
			span.SetAttributes(
				attribute.String(observability.AttrSource, resilience.SourceCache.String()),
				attribute.Bool(observability.AttrFromCache, true),
			)
			return Response[T]{Result: v, FromCache: true, Source: resilience.SourceCache, Latency: latency}, nil
		}
		o.counters.miss()
		o.instruments.RecordCacheLookup(ctx, false)
	}

	rd := resilience.Descriptor{
		Operation: "fixture",
		Route:     key.Route,
		Method:    d.Method,
		Fields:    fields,
	}
	outcome, shared, err := o.execute(ctx, cfg, key, fixtureOp, passthroughOp, rd)
	latency := o.now().Sub(start)

	if err != nil {
		timedOut := outcome.TimedOut || resilience.IsTimeout(err)
		o.counters.failure(timedOut, shared)
		if timedOut {
			o.instruments.RecordTimeouts(ctx, 1)
		}
		o.instruments.RecordError(ctx, errorKind(err, outcome))
		observability.SetSpanError(span, err)
		o.log.Error("request failed", logger.MergeWithError(withDuration(fields, latency, outcome.Source), err))
		return Response[T]{TimedOut: timedOut, Source: outcome.Source, Latency: latency}, err
	}

	if useCache && outcome.Source == resilience.SourceFixture && !outcome.TimedOut {
		o.cache.Set(key, outcome.Result, d.TTL)
	}

	o.counters.outcome(outcome.Source, outcome.TimedOut, shared, latency)
	if outcome.TimedOut {
		o.instruments.RecordTimeouts(ctx, 1)
	}
	o.instruments.RecordOutcome(ctx, outcome.Source.String(), outcome.TimedOut, latency)
	span.SetAttributes(
		attribute.String(observability.AttrSource, outcome.Source.String()),
		attribute.Bool(observability.AttrTimedOut, outcome.TimedOut),
		attribute.Bool(observability.AttrFromCache, false),
		attribute.Int64(observability.AttrBudgetMs, cfg.FixtureTimeout.Milliseconds()),
	)

	return Response[T]{
		Result:   outcome.Result,
		TimedOut: outcome.TimedOut,
		Source:   outcome.Source,
		Latency:  latency,
	}, nil
}

// execute runs the executor, sharing one run among concurrent identical
// misses when coalescing is on. shared reports whether the run served more
// than one caller.
func (o *Orchestrator[T]) execute(ctx context.Context, cfg Config, key cache.Key, fixtureOp, passthroughOp resilience.Operation[T], rd resilience.Descriptor) (resilience.Outcome[T], bool, error) {
	if !cfg.Coalesce {
		out, err := resilience.ExecuteWithBudget(ctx, o.executor, fixtureOp, passthroughOp, rd)
		return out, false, err
	}
	// The shared run outlives any one caller; each waiter stops on its own ctx
	// inside coalesce.
	runCtx := context.WithoutCancel(ctx)
	return coalesce(ctx, &o.flight, key, func() (resilience.Outcome[T], error) {
		return resilience.ExecuteWithBudget(runCtx, o.executor, fixtureOp, passthroughOp, rd)
	})
}

// ExecuteMultipleWithBudget runs every pair concurrently under the executor,
// bypassing the cache. Results are in input order; one pair failing does not
// affect the others.
func (o *Orchestrator[T]) ExecuteMultipleWithBudget(ctx context.Context, pairs []resilience.Pair[T]) []resilience.BatchResult[T] {
	ctx, span := o.tracer.Start(ctx, observability.SpanExecuteBatch, trace.WithAttributes(
		attribute.Int(observability.AttrBatchSize, len(pairs)),
	))
	defer span.End()

	results := resilience.ExecuteMultipleWithBudget(ctx, o.executor, pairs)
	for i, r := range results {
		if r.Err != nil {
			o.counters.failure(r.Outcome.TimedOut, false)
			if r.Outcome.TimedOut {
				o.instruments.RecordTimeouts(ctx, 1)
			}
			o.instruments.RecordError(ctx, errorKind(r.Err, r.Outcome))
			o.log.Error("batch item failed", logger.MergeWithError(withDuration(batchFields(i, pairs[i].Descriptor), r.Outcome.Elapsed, r.Outcome.Source), r.Err))
			continue
		}
		o.counters.outcome(r.Outcome.Source, r.Outcome.TimedOut, false, r.Outcome.Elapsed)
		if r.Outcome.TimedOut {
			o.instruments.RecordTimeouts(ctx, 1)
		}
		o.instruments.RecordOutcome(ctx, r.Outcome.Source.String(), r.Outcome.TimedOut, r.Outcome.Elapsed)
	}
	return results
}

// GetMetrics merges request counters with cache and executor statistics.
func (o *Orchestrator[T]) GetMetrics() Metrics {
	m := o.counters.snapshot()
	m.Cache = o.cache.Stats()
	m.Budget = o.executor.Stats()
	m.Uptime = o.now().Sub(o.started)
	return m
}

// Reset clears the cache and every counter. Configuration is unchanged.
func (o *Orchestrator[T]) Reset() {
	o.cache.Clear()
	o.cache.ResetStats()
	o.executor.ResetStats()
	o.counters.reset()
}

// GetConfig returns the current configuration.
func (o *Orchestrator[T]) GetConfig() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

// UpdateConfig applies cfg to subsequent calls. Out-of-range fields are
// replaced by defaults. A smaller cache capacity evicts entries immediately;
// a new default TTL applies to entries stored from now on. A changed cleanup
// interval restarts the sweep.
func (o *Orchestrator[T]) UpdateConfig(cfg Config) {
	logCorrections(o.log, cfg.Normalize())

	o.mu.Lock()
	prev := o.config
	o.config = cfg
	o.mu.Unlock()

	o.executor.UpdateConfig(cfg.budgetConfig())
	if cfg.CacheMaxEntries != prev.CacheMaxEntries {
		if evicted := o.cache.Resize(cfg.CacheMaxEntries); evicted > 0 {
			o.log.Info("cache resized", logger.Fields("max_entries", cfg.CacheMaxEntries, "evicted", evicted))
		}
	}
	if cfg.CacheDefaultTTL != prev.CacheDefaultTTL {
		o.cache.SetDefaultTTL(cfg.CacheDefaultTTL)
	}
	if cfg.CacheCleanupInterval != prev.CacheCleanupInterval {
		o.lifecycle.Lock()
		if o.janitor != nil {
			o.janitor.stop()
			o.janitor = startJanitor(cfg.CacheCleanupInterval, o.sweep)
		}
		o.lifecycle.Unlock()
	}
}

// Cleanup removes expired cache entries now and returns how many were removed.
func (o *Orchestrator[T]) Cleanup() int {
	return o.cleanup(context.Background())
}

func (o *Orchestrator[T]) cleanup(ctx context.Context) int {
	ctx, span := o.tracer.Start(ctx, observability.SpanCleanup)
	defer span.End()

	removed := o.cache.Cleanup()
	o.instruments.RecordSweep(ctx, removed)
	span.SetAttributes(attribute.Int(observability.AttrRemoved, removed))
	if removed > 0 {
		o.log.Debug("expired cache entries removed", logger.Fields(logger.FieldRemoved, removed))
	}
	return removed
}

func (o *Orchestrator[T]) sweep(ctx context.Context) {
	o.cleanup(ctx)
}

// Destroy stops the background sweep. It is safe to call more than once.
// Requests still work afterwards; expired entries are then only dropped on
// read or by Cleanup.
func (o *Orchestrator[T]) Destroy() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	o.janitor.stop()
	o.janitor = nil
}

// ensureJanitor starts the sweep at the configured interval unless it is
// already running. It reports whether a new sweep was started.
func (o *Orchestrator[T]) ensureJanitor() bool {
	interval := o.GetConfig().CacheCleanupInterval

	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	if o.janitor != nil {
		return false
	}
	o.janitor = startJanitor(interval, o.sweep)
	return true
}

func (o *Orchestrator[T]) sweeping() bool {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.janitor != nil
}

// batchFields identifies one batch item in logs.
func batchFields(index int, d resilience.Descriptor) map[string]any {
	fields := make(map[string]any, len(d.Fields)+4)
	for k, v := range d.Fields {
		fields[k] = v
	}
	fields[logger.FieldIndex] = index
	if d.Operation != "" {
		fields[logger.FieldOperation] = d.Operation
	}
	if d.Route != "" {
		fields[logger.FieldRoute] = d.Route
	}
	if d.Method != "" {
		fields[logger.FieldMethod] = d.Method
	}
	return fields
}

func withDuration(fields map[string]any, latency time.Duration, source resilience.Source) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out[logger.FieldDuration] = latency.Milliseconds()
	if source != "" {
		out[logger.FieldSource] = source.String()
	}
	return out
}

// errorKind labels a failure for metrics.
func errorKind[T any](err error, outcome resilience.Outcome[T]) string {
	switch {
	case goerrors.HasCode(err, goerrors.ErrCodeBudgetExceeded):
		return "budget_exceeded"
	case outcome.Source == resilience.SourcePassthrough:
		return "passthrough"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "fixture"
	}
}
