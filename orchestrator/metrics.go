package orchestrator

import (
	"sync"
	"time"

	"github.com/kbukum/fixturekit/cache"
	"github.com/kbukum/fixturekit/resilience"
)

// Metrics is a point-in-time snapshot of orchestrator activity.
type Metrics struct {
	CacheHits        int64 `json:"cache_hits"`
	CacheMisses      int64 `json:"cache_misses"`
	TimeoutHits      int64 `json:"timeout_hits"`
	PassthroughCount int64 `json:"passthrough_count"`
	TotalRequests    int64 `json:"total_requests"`
	Errors           int64 `json:"errors"`
	// CoalescedRequests counts callers served by a fixture run shared with
	// at least one other caller.
	CoalescedRequests int64 `json:"coalesced_requests"`
	// AverageResponseTime is the running mean latency of successful requests.
	AverageResponseTime time.Duration `json:"average_response_time"`
	CacheHitRate        float64       `json:"cache_hit_rate"`
	// TimeoutRate is TimeoutHits over TotalRequests.
	TimeoutRate float64                `json:"timeout_rate"`
	Cache       cache.Stats            `json:"cache"`
	Budget      resilience.BudgetStats `json:"budget"`
	Uptime      time.Duration          `json:"uptime"`
}

// counters are the request-level tallies owned by the orchestrator.
type counters struct {
	mu          sync.Mutex
	cacheHits   int64
	cacheMisses int64
	timeouts    int64
	passthrough int64
	total       int64
	errors      int64
	coalesced   int64
	succeeded   int64
	avgLatency  float64
}

func (c *counters) hit(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.cacheHits++
	c.observe(latency)
}

func (c *counters) miss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheMisses++
}

func (c *counters) outcome(source resilience.Source, timedOut, shared bool, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if timedOut {
		c.timeouts++
	}
	if source == resilience.SourcePassthrough {
		c.passthrough++
	}
	if shared {
		c.coalesced++
	}
	c.observe(latency)
}

func (c *counters) failure(timedOut, shared bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.errors++
	if timedOut {
		c.timeouts++
	}
	if shared {
		c.coalesced++
	}
}

// observe folds latency into the running mean. Callers hold mu.
func (c *counters) observe(latency time.Duration) {
	c.succeeded++
	c.avgLatency += (float64(latency) - c.avgLatency) / float64(c.succeeded)
}

func (c *counters) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits, c.cacheMisses, c.timeouts, c.passthrough = 0, 0, 0, 0
	c.total, c.errors, c.coalesced = 0, 0, 0
	c.succeeded, c.avgLatency = 0, 0
}

func (c *counters) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		CacheHits:           c.cacheHits,
		CacheMisses:         c.cacheMisses,
		TimeoutHits:         c.timeouts,
		PassthroughCount:    c.passthrough,
		TotalRequests:       c.total,
		Errors:              c.errors,
		CoalescedRequests:   c.coalesced,
		AverageResponseTime: time.Duration(c.avgLatency),
	}
	if lookups := c.cacheHits + c.cacheMisses; lookups > 0 {
		m.CacheHitRate = float64(c.cacheHits) / float64(lookups)
	}
	if c.total > 0 {
		m.TimeoutRate = float64(c.timeouts) / float64(c.total)
	}
	return m
}
