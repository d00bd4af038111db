package orchestrator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kbukum/fixturekit/component"
)

const (
	// degradedTimeoutRate is the timeout rate above which health is degraded.
	degradedTimeoutRate = 0.5
	// minHealthSamples is the request count below which the rate is ignored.
	minHealthSamples = 10
)

// Component adapts an Orchestrator to the component lifecycle.
type Component[T any] struct {
	name string
	orc  *Orchestrator[T]
}

var (
	_ component.Component   = (*Component[any])(nil)
	_ component.Describable = (*Component[any])(nil)
)

// NewComponent wraps orc. An empty name defaults to "fixturekit".
func NewComponent[T any](name string, orc *Orchestrator[T]) *Component[T] {
	if name == "" {
		name = ServiceName
	}
	return &Component[T]{name: name, orc: orc}
}

// Name returns the component name.
func (c *Component[T]) Name() string { return c.name }

// Orchestrator returns the wrapped orchestrator.
func (c *Component[T]) Orchestrator() *Orchestrator[T] { return c.orc }

// Start (re)starts the background cache sweep.
func (c *Component[T]) Start(ctx context.Context) error {
	if c.orc.ensureJanitor() {
		c.orc.log.Info("cache sweep started", map[string]any{
			"interval": c.orc.GetConfig().CacheCleanupInterval.String(),
		})
	}
	return nil
}

// Stop stops the background cache sweep.
func (c *Component[T]) Stop(ctx context.Context) error {
	c.orc.Destroy()
	return nil
}

// Health reports degraded when most recent requests time out or when the
// cache sweep is not running.
func (c *Component[T]) Health(ctx context.Context) component.Health {
	m := c.orc.GetMetrics()
	h := component.Health{
		Name:   c.name,
		Status: component.StatusHealthy,
		Details: map[string]string{
			"total_requests": strconv.FormatInt(m.TotalRequests, 10),
			"timeout_rate":   strconv.FormatFloat(m.TimeoutRate, 'f', 3, 64),
			"cache_size":     strconv.Itoa(m.Cache.Size),
			"inflight":       strconv.FormatInt(m.Budget.Inflight, 10),
			"inflight_free":  strconv.FormatInt(m.Budget.InflightAvailable, 10),
		},
	}

	switch {
	case m.TotalRequests >= minHealthSamples && m.TimeoutRate > degradedTimeoutRate:
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("%.0f%% of requests exceeded the fixture budget", m.TimeoutRate*100)
	case !c.orc.sweeping():
		h.Status = component.StatusDegraded
		h.Message = "cache sweep stopped"
	}
	return h
}

// Describe summarizes the configuration.
func (c *Component[T]) Describe() component.Description {
	cfg := c.orc.GetConfig()
	cacheDetails := "off"
	if cfg.CacheEnabled {
		cacheDetails = fmt.Sprintf("%d/%s", cfg.CacheMaxEntries, cfg.CacheDefaultTTL)
	}
	return component.Description{
		Name:    "Resilience Orchestrator",
		Type:    "resilience",
		Details: fmt.Sprintf("budget=%s passthrough=%t cache=%s", cfg.FixtureTimeout, cfg.EnablePassthrough, cacheDetails),
	}
}
