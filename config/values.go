package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Correction records a setting that was present but unusable and was
// replaced by its default.
type Correction struct {
	Key     string
	Raw     string
	Default string
	Reason  string
}

// String formats the correction for logs.
func (c Correction) String() string {
	return fmt.Sprintf("%s=%q: %s, using default %s", c.Key, c.Raw, c.Reason, c.Default)
}

// Values is a read-only view over loaded settings. Every getter takes the
// default to use when the key is missing or malformed; malformed values are
// remembered as corrections instead of failing.
type Values struct {
	v           *viper.Viper
	files       ResolvedFiles
	warnings    []string
	corrections []Correction
}

// NewValues wraps an existing viper instance. Useful when the caller already
// owns the configuration tree.
func NewValues(v *viper.Viper) *Values {
	return &Values{v: v}
}

// Files returns the config and env files that were used.
func (c *Values) Files() ResolvedFiles { return c.files }

// Warnings returns file loading problems encountered by Load.
func (c *Values) Warnings() []string { return c.warnings }

// Corrections returns the settings that fell back to their defaults.
func (c *Values) Corrections() []Correction { return c.corrections }

// IsSet reports whether key has a non-empty value.
func (c *Values) IsSet(key string) bool {
	return strings.TrimSpace(c.v.GetString(key)) != ""
}

// String returns the value for key or def.
func (c *Values) String(key, def string) string {
	raw := strings.TrimSpace(c.v.GetString(key))
	if raw == "" {
		return def
	}
	return raw
}

// Int returns the integer value for key or def.
func (c *Values) Int(key string, def int) int {
	raw, ok := c.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.correct(key, raw, strconv.Itoa(def), "not an integer")
		return def
	}
	return n
}

// Float returns the float value for key or def.
func (c *Values) Float(key string, def float64) float64 {
	raw, ok := c.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.correct(key, raw, strconv.FormatFloat(def, 'f', -1, 64), "not a number")
		return def
	}
	return f
}

// Bool returns the boolean value for key or def.
func (c *Values) Bool(key string, def bool) bool {
	raw, ok := c.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		c.correct(key, raw, strconv.FormatBool(def), "not a boolean")
		return def
	}
	return b
}

// Millis reads an integer number of milliseconds. Negative values are
// rejected in favour of def; zero is kept.
func (c *Values) Millis(key string, def time.Duration) time.Duration {
	raw, ok := c.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.correct(key, raw, strconv.FormatInt(def.Milliseconds(), 10), "not an integer millisecond value")
		return def
	}
	if n < 0 {
		c.correct(key, raw, strconv.FormatInt(def.Milliseconds(), 10), "negative duration")
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func (c *Values) raw(key string) (string, bool) {
	raw := strings.TrimSpace(c.v.GetString(key))
	return raw, raw != ""
}

func (c *Values) correct(key, raw, def, reason string) {
	c.corrections = append(c.corrections, Correction{Key: key, Raw: raw, Default: def, Reason: reason})
}
