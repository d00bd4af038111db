// Package config loads fixturekit settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
//
// It uses Viper for the configuration tree and godotenv for .env files.
// Settings are read through typed getters that substitute the caller's
// default when a value is missing or malformed, so a bad setting never stops
// the process:
//
//	values := config.Load("fixturekit")
//	budget := values.Millis("fixture_timeout_ms", 35*time.Millisecond)
//	for _, c := range values.Corrections() {
//	    log.Warn(c.String())
//	}
//
// Environment variables map onto lower-case keys: FIXTURE_TIMEOUT_MS sets
// fixture_timeout_ms.
package config
