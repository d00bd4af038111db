package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kbukum/fixturekit/cache"
	goerrors "github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/resilience"
	"github.com/kbukum/fixturekit/scenario"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingOp struct {
	calls atomic.Int32
	delay time.Duration
	value string
	err   error
}

func (c *countingOp) Run(ctx context.Context) (string, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.value, c.err
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// entries decodes every JSON line logged with the given message.
func (b *syncBuffer) entries(t *testing.T, msg string) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("expected JSON log line, got %q: %v", line, err)
		}
		if entry["message"] == msg {
			out = append(out, entry)
		}
	}
	return out
}

func captureLogger(buf *syncBuffer) *logger.Logger {
	return logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, ServiceName, buf)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FixtureTimeout = 50 * time.Millisecond
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg Config, opts ...Option) *Orchestrator[string] {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	orc := New[string](cfg, scenario.Static{Name: "default", Seed: 1}, opts...)
	t.Cleanup(orc.Destroy)
	return orc
}

func TestExecuteRequest_FixtureResultIsCached(t *testing.T) {
	orc := newTestOrchestrator(t, testConfig())
	ctx := context.Background()
	d := Descriptor{Route: "/api/users", Method: "GET", Params: "page=1"}

	fixture := &countingOp{delay: 5 * time.Millisecond, value: "users"}
	resp, err := orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != resilience.SourceFixture || resp.FromCache || resp.TimedOut {
		t.Errorf("expected fresh fixture response, got %+v", resp)
	}

	slowFixture := &countingOp{delay: 200 * time.Millisecond, value: "never"}
	before := orc.GetMetrics()
	resp, err = orc.ExecuteRequest(ctx, slowFixture.Run, nil, d)
	if err != nil {
		t.Fatalf("unexpected error on cached request: %v", err)
	}
	if resp.Source != resilience.SourceCache || !resp.FromCache || resp.TimedOut {
		t.Errorf("expected cache response, got %+v", resp)
	}
	if resp.Result != "users" {
		t.Errorf("expected cached value, got %q", resp.Result)
	}
	if slowFixture.calls.Load() != 0 {
		t.Error("expected a cache hit not to invoke the fixture operation")
	}

	after := orc.GetMetrics()
	if after.CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", after.CacheHits)
	}
	if after.CacheMisses != before.CacheMisses {
		t.Errorf("expected cache misses unchanged by a hit, %d -> %d", before.CacheMisses, after.CacheMisses)
	}
	if after.TimeoutHits != 0 {
		t.Errorf("expected a cache hit never to count as timeout, got %d", after.TimeoutHits)
	}
}

func TestExecuteRequest_TimeoutScenarios(t *testing.T) {
	orc := newTestOrchestrator(t, testConfig())
	ctx := context.Background()
	d := Descriptor{Route: "/api/orders"}

	fixture := &countingOp{delay: 100 * time.Millisecond, value: "fixture"}
	passthrough := &countingOp{delay: 10 * time.Millisecond, value: "passthrough"}

	resp, err := orc.ExecuteRequest(ctx, fixture.Run, passthrough.Run, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != resilience.SourcePassthrough || !resp.TimedOut {
		t.Errorf("expected passthrough after timeout, got %+v", resp)
	}

	_, err = orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	if err == nil {
		t.Fatal("expected timeout error without passthrough")
	}
	if !goerrors.HasCode(err, goerrors.ErrCodeBudgetExceeded) {
		t.Errorf("expected BUDGET_EXCEEDED, got %v", err)
	}

	if fixture.calls.Load() != 2 {
		t.Errorf("expected the passthrough result not to be cached, fixture calls = %d", fixture.calls.Load())
	}

	m := orc.GetMetrics()
	if m.TimeoutHits != 2 {
		t.Errorf("expected timeoutHits == 2, got %d", m.TimeoutHits)
	}
	if m.PassthroughCount != 1 {
		t.Errorf("expected 1 passthrough, got %d", m.PassthroughCount)
	}
	if m.Errors != 1 {
		t.Errorf("expected 1 error, got %d", m.Errors)
	}
	if m.TotalRequests != 2 || m.TimeoutRate != 1 {
		t.Errorf("expected 2 requests at timeout rate 1, got %d at %v", m.TotalRequests, m.TimeoutRate)
	}
	if m.Cache.Size != 0 {
		t.Errorf("expected nothing cached, got %d entries", m.Cache.Size)
	}
}

func TestExecuteRequest_DegradedResultRetriesFixture(t *testing.T) {
	cfg := testConfig()
	orc := newTestOrchestrator(t, cfg)
	ctx := context.Background()
	d := Descriptor{Route: "/api/recover"}

	slow := &countingOp{delay: 100 * time.Millisecond, value: "slow"}
	passthrough := &countingOp{value: "live"}
	if resp, _ := orc.ExecuteRequest(ctx, slow.Run, passthrough.Run, d); resp.Source != resilience.SourcePassthrough {
		t.Fatalf("expected passthrough, got %+v", resp)
	}

	fast := &countingOp{value: "fixture"}
	resp, err := orc.ExecuteRequest(ctx, fast.Run, passthrough.Run, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != resilience.SourceFixture || fast.calls.Load() != 1 {
		t.Errorf("expected the recovered fixture path to be tried, got %+v", resp)
	}
}

func TestExecuteRequest_PrimaryErrorPropagates(t *testing.T) {
	orc := newTestOrchestrator(t, testConfig())
	boom := errors.New("fixture file corrupt")

	fixture := &countingOp{err: boom}
	passthrough := &countingOp{value: "live"}
	resp, err := orc.ExecuteRequest(context.Background(), fixture.Run, passthrough.Run, Descriptor{Route: "/x"})
	if err != boom {
		t.Fatalf("expected original error, got %v", err)
	}
	if passthrough.calls.Load() != 0 {
		t.Error("expected no passthrough on a non-timeout failure")
	}
	if resp.TimedOut {
		t.Error("expected TimedOut=false")
	}
	m := orc.GetMetrics()
	if m.Errors != 1 || m.TimeoutHits != 0 || m.Cache.Size != 0 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestExecuteRequest_FallbackFailurePropagates(t *testing.T) {
	cfg := testConfig()
	cfg.FixtureTimeout = 10 * time.Millisecond
	orc := newTestOrchestrator(t, cfg)
	down := errors.New("backend unavailable")

	_, err := orc.ExecuteRequest(context.Background(),
		(&countingOp{delay: 60 * time.Millisecond}).Run,
		(&countingOp{err: down}).Run,
		Descriptor{Route: "/x"})
	if err != down {
		t.Fatalf("expected passthrough error unchanged, got %v", err)
	}
	m := orc.GetMetrics()
	if m.TimeoutHits != 1 || m.Errors != 1 || m.Budget.FallbackFailures != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestExecuteRequest_ScenarioPartitionsCache(t *testing.T) {
	sw := scenario.NewSwitch(scenario.Scenario{Name: "happy", Seed: 1})
	orc := New[string](testConfig(), sw, WithLogger(logger.Nop()))
	t.Cleanup(orc.Destroy)
	ctx := context.Background()
	d := Descriptor{Route: "/api/users"}

	fixture := &countingOp{value: "v"}
	orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	if fixture.calls.Load() != 1 {
		t.Fatalf("expected second call to hit the cache, calls = %d", fixture.calls.Load())
	}

	sw.Set(scenario.Scenario{Name: "happy", Seed: 2})
	resp, _ := orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	if resp.FromCache {
		t.Error("expected a different seed to miss")
	}

	sw.Set(scenario.Scenario{Name: "outage", Seed: 1})
	resp, _ = orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	if resp.FromCache {
		t.Error("expected a different scenario name to miss")
	}

	sw.Set(scenario.Scenario{Name: "happy", Seed: 1})
	resp, _ = orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	if !resp.FromCache {
		t.Error("expected switching back to reuse the original entry")
	}
}

func TestExecuteRequest_EquivalentParamsShareEntry(t *testing.T) {
	orc := newTestOrchestrator(t, testConfig())
	ctx := context.Background()
	fixture := &countingOp{value: "v"}

	orc.ExecuteRequest(ctx, fixture.Run, nil, Descriptor{Route: "/api/search?b=2&a=1"})
	resp, _ := orc.ExecuteRequest(ctx, fixture.Run, nil, Descriptor{Route: "/API/search", Params: "a=1&b=2"})
	if !resp.FromCache {
		t.Error("expected reordered params on an equivalent route to hit")
	}
}

func TestExecuteRequest_CacheSwitches(t *testing.T) {
	off := false
	tests := []struct {
		name         string
		cacheEnabled bool
		perCall      *bool
	}{
		{"disabled globally", false, nil},
		{"disabled per call", true, &off},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CacheEnabled = tc.cacheEnabled
			orc := newTestOrchestrator(t, cfg)
			fixture := &countingOp{value: "v"}
			d := Descriptor{Route: "/nocache", EnableCache: tc.perCall}

			for i := 0; i < 2; i++ {
				resp, err := orc.ExecuteRequest(context.Background(), fixture.Run, nil, d)
				if err != nil || resp.FromCache {
					t.Fatalf("expected uncached fixture response, got %+v, %v", resp, err)
				}
			}
			if fixture.calls.Load() != 2 {
				t.Errorf("expected 2 fixture calls, got %d", fixture.calls.Load())
			}
			m := orc.GetMetrics()
			if m.CacheHits != 0 || m.CacheMisses != 0 || m.Cache.Size != 0 {
				t.Errorf("expected the cache untouched, got %+v", m)
			}
		})
	}
}

func TestExecuteRequest_TTL(t *testing.T) {
	clock := newFakeClock()
	orc := newTestOrchestrator(t, testConfig(), WithClock(clock.Now))
	ctx := context.Background()
	fixture := &countingOp{value: "v"}
	d := Descriptor{Route: "/ttl", TTL: time.Second}

	orc.ExecuteRequest(ctx, fixture.Run, nil, d)
	clock.Advance(999 * time.Millisecond)
	if resp, _ := orc.ExecuteRequest(ctx, fixture.Run, nil, d); !resp.FromCache {
		t.Error("expected hit before TTL")
	}
	clock.Advance(2 * time.Millisecond)
	if resp, _ := orc.ExecuteRequest(ctx, fixture.Run, nil, d); resp.FromCache {
		t.Error("expected miss after TTL")
	}
	if fixture.calls.Load() != 2 {
		t.Errorf("expected 2 fixture calls, got %d", fixture.calls.Load())
	}
}

func TestExecuteRequest_Coalesce(t *testing.T) {
	cfg := testConfig()
	cfg.FixtureTimeout = time.Second
	cfg.Coalesce = true
	orc := newTestOrchestrator(t, cfg)

	release := make(chan struct{})
	var calls atomic.Int32
	fixture := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Response[string], callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = orc.ExecuteRequest(context.Background(), fixture, nil, Descriptor{Route: "/hot"})
		}(i)
	}

	deadline := time.Now().Add(time.Second)
	for orc.GetMetrics().CacheMisses < callers && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected one fixture execution, got %d", calls.Load())
	}
	for i, r := range results {
		if r.Result != "shared" || r.Source != resilience.SourceFixture {
			t.Errorf("caller %d: unexpected response %+v", i, r)
		}
	}
	if got := orc.GetMetrics().CoalescedRequests; got != callers {
		t.Errorf("expected %d coalesced requests, got %d", callers, got)
	}
}

func TestExecuteRequest_CoalesceSurvivesCallerCancel(t *testing.T) {
	cfg := testConfig()
	cfg.FixtureTimeout = time.Second
	cfg.Coalesce = true
	orc := newTestOrchestrator(t, cfg)

	release := make(chan struct{})
	var calls atomic.Int32
	fixture := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}
	d := Descriptor{Route: "/hot"}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := orc.ExecuteRequest(firstCtx, fixture, nil, d)
		firstErr <- err
	}()

	type result struct {
		resp Response[string]
		err  error
	}
	second := make(chan result, 1)
	go func() {
		resp, err := orc.ExecuteRequest(context.Background(), fixture, nil, d)
		second <- result{resp, err}
	}()

	deadline := time.Now().Add(time.Second)
	for orc.GetMetrics().CacheMisses < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled caller to get context.Canceled, got %v", err)
	}

	close(release)
	r := <-second
	if r.err != nil {
		t.Fatalf("expected the live caller to get the fixture result, got %v", r.err)
	}
	if r.resp.Result != "shared" || r.resp.Source != resilience.SourceFixture {
		t.Errorf("unexpected response %+v", r.resp)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one fixture execution, got %d", calls.Load())
	}
}

func TestExecuteRequest_NoCoalesceByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.FixtureTimeout = time.Second
	orc := newTestOrchestrator(t, cfg)

	var calls atomic.Int32
	fixture := func(ctx context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orc.ExecuteRequest(context.Background(), fixture, nil, Descriptor{Route: "/hot"})
		}()
	}
	wg.Wait()

	if calls.Load() != 3 {
		t.Errorf("expected concurrent misses to run independently, got %d calls", calls.Load())
	}
}

func TestExecuteMultipleWithBudget(t *testing.T) {
	orc := newTestOrchestrator(t, testConfig())

	results := orc.ExecuteMultipleWithBudget(context.Background(), []resilience.Pair[string]{
		{Primary: (&countingOp{value: "a"}).Run},
		{Primary: (&countingOp{delay: 100 * time.Millisecond}).Run, Fallback: (&countingOp{value: "b"}).Run},
		{Primary: (&countingOp{err: errors.New("bad")}).Run},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Outcome.Result != "a" || results[1].Outcome.Result != "b" || results[2].Err == nil {
		t.Errorf("unexpected results: %+v", results)
	}
	m := orc.GetMetrics()
	if m.TotalRequests != 3 || m.TimeoutHits != 1 || m.PassthroughCount != 1 || m.Errors != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if m.Cache.Size != 0 {
		t.Error("expected batches to bypass the cache")
	}
}

func TestExecuteMultipleWithBudget_LogsFailures(t *testing.T) {
	buf := &syncBuffer{}
	orc := newTestOrchestrator(t, testConfig(), WithLogger(captureLogger(buf)))

	orc.ExecuteMultipleWithBudget(context.Background(), []resilience.Pair[string]{
		{Primary: (&countingOp{value: "a"}).Run},
		{
			Primary:    (&countingOp{err: errors.New("fixture file corrupt")}).Run,
			Descriptor: resilience.Descriptor{Route: "/orders", Method: "GET"},
		},
	})

	entries := buf.entries(t, "batch item failed")
	if len(entries) != 1 {
		t.Fatalf("expected one failure logged, got %d", len(entries))
	}
	e := entries[0]
	if e[logger.FieldIndex] != float64(1) || e[logger.FieldRoute] != "/orders" || e[logger.FieldMethod] != "GET" {
		t.Errorf("expected the item identified, got %v", e)
	}
	if _, ok := e[logger.FieldDuration]; !ok {
		t.Errorf("expected a duration field, got %v", e)
	}
	if e[logger.FieldSource] != "fixture" || !strings.Contains(e[logger.FieldError].(string), "fixture file corrupt") {
		t.Errorf("expected source and error logged, got %v", e)
	}
}

func TestReset(t *testing.T) {
	cfg := testConfig()
	cfg.CacheMaxEntries = 42
	orc := newTestOrchestrator(t, cfg)
	ctx := context.Background()
	fixture := &countingOp{value: "v"}

	orc.ExecuteRequest(ctx, fixture.Run, nil, Descriptor{Route: "/a"})
	orc.ExecuteRequest(ctx, fixture.Run, nil, Descriptor{Route: "/a"})
	orc.ExecuteRequest(ctx, (&countingOp{delay: 100 * time.Millisecond}).Run, nil, Descriptor{Route: "/b"})

	orc.Reset()

	m := orc.GetMetrics()
	if m.CacheHits != 0 || m.CacheMisses != 0 || m.TimeoutHits != 0 || m.TotalRequests != 0 || m.Errors != 0 {
		t.Errorf("expected zeroed counters, got %+v", m)
	}
	if m.Cache.Size != 0 || m.Cache.Hits != 0 {
		t.Errorf("expected empty cache, got %+v", m.Cache)
	}
	if m.Budget.Executions != 0 {
		t.Errorf("expected zeroed executor stats, got %+v", m.Budget)
	}
	if orc.GetConfig() != cfg {
		t.Error("expected configuration unchanged by Reset")
	}

	if resp, _ := orc.ExecuteRequest(ctx, fixture.Run, nil, Descriptor{Route: "/a"}); resp.FromCache {
		t.Error("expected cache cleared by Reset")
	}
}

func TestUpdateConfig(t *testing.T) {
	orc := newTestOrchestrator(t, testConfig())
	ctx := context.Background()
	for _, r := range []string{"/1", "/2", "/3"} {
		orc.ExecuteRequest(ctx, (&countingOp{value: r}).Run, nil, Descriptor{Route: r})
	}

	cfg := orc.GetConfig()
	cfg.FixtureTimeout = 5 * time.Millisecond
	cfg.CacheMaxEntries = 1
	cfg.SlowThreshold = 3
	orc.UpdateConfig(cfg)

	got := orc.GetConfig()
	if got.FixtureTimeout != 5*time.Millisecond || got.CacheMaxEntries != 1 {
		t.Errorf("expected new settings, got %+v", got)
	}
	if got.SlowThreshold != DefaultConfig().SlowThreshold {
		t.Errorf("expected invalid threshold to be replaced, got %v", got.SlowThreshold)
	}
	if size := orc.GetMetrics().Cache.Size; size != 1 {
		t.Errorf("expected cache shrunk to 1, got %d", size)
	}

	resp, err := orc.ExecuteRequest(ctx, (&countingOp{delay: 50 * time.Millisecond}).Run, (&countingOp{value: "p"}).Run, Descriptor{Route: "/slow"})
	if err != nil || resp.Source != resilience.SourcePassthrough {
		t.Errorf("expected the new budget to apply, got %+v, %v", resp, err)
	}

	cfg = orc.GetConfig()
	cfg.EnablePassthrough = false
	orc.UpdateConfig(cfg)
	_, err = orc.ExecuteRequest(ctx, (&countingOp{delay: 50 * time.Millisecond}).Run, (&countingOp{value: "p"}).Run, Descriptor{Route: "/slow"})
	if !goerrors.HasCode(err, goerrors.ErrCodeBudgetExceeded) {
		t.Errorf("expected disabled passthrough to surface the timeout, got %v", err)
	}
}

func TestNew_NormalizesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.CacheMaxEntries = -5
	cfg.CacheDefaultTTL = 0
	orc := newTestOrchestrator(t, cfg)

	got := orc.GetConfig()
	if got.CacheMaxEntries != 1000 || got.CacheDefaultTTL != 5*time.Minute {
		t.Errorf("expected defaults, got %+v", got)
	}
	if got.FixtureTimeout != 50*time.Millisecond {
		t.Errorf("expected valid fields kept, got %v", got.FixtureTimeout)
	}
}

func TestZeroBudgetAlwaysFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.FixtureTimeout = 0
	orc := newTestOrchestrator(t, cfg)
	fixture := &countingOp{value: "fixture"}

	resp, err := orc.ExecuteRequest(context.Background(), fixture.Run, (&countingOp{value: "p"}).Run, Descriptor{Route: "/z"})
	if err != nil || resp.Source != resilience.SourcePassthrough || !resp.TimedOut {
		t.Errorf("expected passthrough, got %+v, %v", resp, err)
	}
	if fixture.calls.Load() != 0 {
		t.Error("expected fixture skipped with a zero budget")
	}
}

func TestCleanup(t *testing.T) {
	clock := newFakeClock()
	orc := newTestOrchestrator(t, testConfig(), WithClock(clock.Now))
	ctx := context.Background()

	orc.ExecuteRequest(ctx, (&countingOp{value: "a"}).Run, nil, Descriptor{Route: "/a", TTL: time.Second})
	orc.ExecuteRequest(ctx, (&countingOp{value: "b"}).Run, nil, Descriptor{Route: "/b", TTL: time.Hour})

	clock.Advance(time.Minute)
	if removed := orc.Cleanup(); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if size := orc.GetMetrics().Cache.Size; size != 1 {
		t.Errorf("expected 1 entry left, got %d", size)
	}
}

func TestJanitorSweeps(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig()
	cfg.CacheCleanupInterval = 5 * time.Millisecond
	orc := newTestOrchestrator(t, cfg, WithClock(clock.Now))

	orc.ExecuteRequest(context.Background(), (&countingOp{value: "a"}).Run, nil, Descriptor{Route: "/a", TTL: time.Second})
	clock.Advance(2 * time.Second)

	deadline := time.Now().Add(time.Second)
	for orc.GetMetrics().Cache.Size > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	m := orc.GetMetrics()
	if m.Cache.Size != 0 || m.Cache.Expirations != 1 {
		t.Errorf("expected the sweep to expire the entry, got %+v", m.Cache)
	}
}

func TestDestroyStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	cfg.CacheCleanupInterval = time.Millisecond
	orc := New[string](cfg, scenario.Static{}, WithLogger(logger.Nop()))

	cfg.CacheCleanupInterval = 2 * time.Millisecond
	orc.UpdateConfig(cfg)

	orc.Destroy()
	orc.Destroy()
	if orc.sweeping() {
		t.Error("expected sweep stopped")
	}
}

func TestGetMetrics_AverageAndUptime(t *testing.T) {
	clock := newFakeClock()
	orc := newTestOrchestrator(t, testConfig(), WithClock(clock.Now))
	ctx := context.Background()

	tick := func(d time.Duration, v string) resilience.Operation[string] {
		return func(ctx context.Context) (string, error) {
			clock.Advance(d)
			return v, nil
		}
	}
	orc.ExecuteRequest(ctx, tick(10*time.Millisecond, "a"), nil, Descriptor{Route: "/a"})
	orc.ExecuteRequest(ctx, tick(30*time.Millisecond, "b"), nil, Descriptor{Route: "/b"})
	orc.ExecuteRequest(ctx, tick(0, "a"), nil, Descriptor{Route: "/a"})

	m := orc.GetMetrics()
	if m.AverageResponseTime != (40*time.Millisecond)/3 {
		t.Errorf("expected mean of 10ms, 30ms and a 0ms hit, got %v", m.AverageResponseTime)
	}
	if m.Uptime != 40*time.Millisecond {
		t.Errorf("expected uptime 40ms, got %v", m.Uptime)
	}
	if m.CacheHitRate != 1.0/3 {
		t.Errorf("expected hit rate 1/3, got %v", m.CacheHitRate)
	}
}

func TestExecuteRequest_RequiresFixture(t *testing.T) {
	orc := newTestOrchestrator(t, testConfig())
	_, err := orc.ExecuteRequest(context.Background(), nil, nil, Descriptor{Route: "/nil"})
	if !goerrors.HasCode(err, goerrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestCacheKeyMatchesOrchestratorKey(t *testing.T) {
	sc := scenario.Scenario{Name: "s", Seed: 9}
	k1 := cache.NewKey("/A//b?x=1&a=2", "", sc)
	k2 := cache.NewKey("/a/b", "a=2&x=1", sc)
	if k1 != k2 {
		t.Errorf("expected equal keys, got %v and %v", k1, k2)
	}
}
