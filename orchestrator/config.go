package orchestrator

import (
	"strconv"
	"time"

	"github.com/kbukum/fixturekit/config"
	goerrors "github.com/kbukum/fixturekit/errors"
	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/resilience"
	"github.com/kbukum/fixturekit/validation"
)

// ServiceName is used to locate configuration files.
const ServiceName = "fixturekit"

// Configuration keys. Each is also read from the upper-cased environment
// variable of the same name.
const (
	KeyFixtureTimeout       = "fixture_timeout_ms"
	KeyEnablePassthrough    = "enable_passthrough"
	KeyEnableTimeoutLogging = "enable_timeout_logging"
	KeyCacheEnabled         = "cache_enabled"
	KeyCacheMaxEntries      = "cache_max_entries"
	KeyCacheDefaultTTL      = "cache_default_ttl_ms"
	KeyCacheCleanupInterval = "cache_cleanup_interval_ms"
	KeySlowThreshold        = "slow_threshold"
	KeyCoalesce             = "coalesce_requests"
	KeyMaxInflight          = "max_inflight_fixtures"
)

// Config configures an Orchestrator.
type Config struct {
	// FixtureTimeout is the budget of the fixture path. Zero sends every
	// cache miss to the passthrough.
	FixtureTimeout time.Duration `mapstructure:"fixture_timeout_ms" validate:"gte=0"`
	// EnablePassthrough allows the passthrough to run on timeout.
	EnablePassthrough bool `mapstructure:"enable_passthrough"`
	// EnableTimeoutLogging enables slow-call and timeout warnings.
	EnableTimeoutLogging bool `mapstructure:"enable_timeout_logging"`
	// CacheEnabled is the master switch for the response cache.
	CacheEnabled bool `mapstructure:"cache_enabled"`
	// CacheMaxEntries is the LRU capacity.
	CacheMaxEntries int `mapstructure:"cache_max_entries" validate:"gt=0"`
	// CacheDefaultTTL applies to entries stored without an explicit TTL.
	CacheDefaultTTL time.Duration `mapstructure:"cache_default_ttl_ms" validate:"gt=0"`
	// CacheCleanupInterval is the period of the background sweep.
	CacheCleanupInterval time.Duration `mapstructure:"cache_cleanup_interval_ms" validate:"gt=0"`
	// SlowThreshold is the fraction of the budget above which a successful
	// fixture call is reported as slow.
	SlowThreshold float64 `mapstructure:"slow_threshold" validate:"gt=0,lte=1"`
	// Coalesce shares one fixture execution among concurrent identical misses.
	Coalesce bool `mapstructure:"coalesce_requests"`
	// MaxInflight caps concurrently running fixture operations. 0 means unlimited.
	MaxInflight int `mapstructure:"max_inflight_fixtures" validate:"gte=0"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FixtureTimeout:       35 * time.Millisecond,
		EnablePassthrough:    true,
		EnableTimeoutLogging: true,
		CacheEnabled:         true,
		CacheMaxEntries:      1000,
		CacheDefaultTTL:      5 * time.Minute,
		CacheCleanupInterval: time.Minute,
		SlowThreshold:        0.8,
	}
}

// Normalize replaces every out-of-range field with its default and reports
// what it changed.
func (c *Config) Normalize() []config.Correction {
	failures := validation.Check(c)
	if len(failures) == 0 {
		return nil
	}

	d := DefaultConfig()
	corrections := make([]config.Correction, 0, len(failures))
	for _, f := range failures {
		raw, def := c.reset(f.Field, d)
		corrections = append(corrections, config.Correction{
			Key:     f.Field,
			Raw:     raw,
			Default: def,
			Reason:  f.Message,
		})
	}
	return corrections
}

// reset restores one field to its default and returns the old and new values.
func (c *Config) reset(key string, d Config) (raw, def string) {
	switch key {
	case KeyFixtureTimeout:
		raw, def = millis(c.FixtureTimeout), millis(d.FixtureTimeout)
		c.FixtureTimeout = d.FixtureTimeout
	case KeyCacheMaxEntries:
		raw, def = strconv.Itoa(c.CacheMaxEntries), strconv.Itoa(d.CacheMaxEntries)
		c.CacheMaxEntries = d.CacheMaxEntries
	case KeyCacheDefaultTTL:
		raw, def = millis(c.CacheDefaultTTL), millis(d.CacheDefaultTTL)
		c.CacheDefaultTTL = d.CacheDefaultTTL
	case KeyCacheCleanupInterval:
		raw, def = millis(c.CacheCleanupInterval), millis(d.CacheCleanupInterval)
		c.CacheCleanupInterval = d.CacheCleanupInterval
	case KeySlowThreshold:
		raw, def = strconv.FormatFloat(c.SlowThreshold, 'f', -1, 64), strconv.FormatFloat(d.SlowThreshold, 'f', -1, 64)
		c.SlowThreshold = d.SlowThreshold
	case KeyMaxInflight:
		raw, def = strconv.Itoa(c.MaxInflight), strconv.Itoa(d.MaxInflight)
		c.MaxInflight = d.MaxInflight
	}
	return raw, def
}

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// budgetConfig derives the executor settings.
func (c Config) budgetConfig() resilience.BudgetConfig {
	return resilience.BudgetConfig{
		Name:              "fixture",
		Budget:            c.FixtureTimeout,
		EnablePassthrough: c.EnablePassthrough,
		LogTimeouts:       c.EnableTimeoutLogging,
		SlowThreshold:     c.SlowThreshold,
		MaxInflight:       c.MaxInflight,
	}
}

// LoadConfig reads the configuration from the environment, a .env file and
// an optional config.yml. Missing keys take their defaults; malformed or
// out-of-range values are replaced by defaults, logged and returned as
// corrections.
func LoadConfig(opts ...config.LoaderOption) (Config, []config.Correction) {
	values := config.Load(ServiceName, opts...)
	d := DefaultConfig()

	cfg := Config{
		FixtureTimeout:       values.Millis(KeyFixtureTimeout, d.FixtureTimeout),
		EnablePassthrough:    values.Bool(KeyEnablePassthrough, d.EnablePassthrough),
		EnableTimeoutLogging: values.Bool(KeyEnableTimeoutLogging, d.EnableTimeoutLogging),
		CacheEnabled:         values.Bool(KeyCacheEnabled, d.CacheEnabled),
		CacheMaxEntries:      values.Int(KeyCacheMaxEntries, d.CacheMaxEntries),
		CacheDefaultTTL:      values.Millis(KeyCacheDefaultTTL, d.CacheDefaultTTL),
		CacheCleanupInterval: values.Millis(KeyCacheCleanupInterval, d.CacheCleanupInterval),
		SlowThreshold:        values.Float(KeySlowThreshold, d.SlowThreshold),
		Coalesce:             values.Bool(KeyCoalesce, d.Coalesce),
		MaxInflight:          values.Int(KeyMaxInflight, d.MaxInflight),
	}

	corrections := append(values.Corrections(), cfg.Normalize()...)

	log := logger.WithComponent("config")
	for _, w := range values.Warnings() {
		log.Warn(w)
	}
	logCorrections(log, corrections)

	return cfg, corrections
}

func logCorrections(log *logger.Logger, corrections []config.Correction) {
	for _, c := range corrections {
		log.Warn("configuration value replaced by default", logger.MergeWithError(logger.Fields(
			"key", c.Key,
			"value", c.Raw,
			"default", c.Default,
		), goerrors.InvalidConfig(c.Key, c.Reason)))
	}
}
