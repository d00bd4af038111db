// Package validation wraps go-playground/validator for fixturekit settings.
//
// Fields are reported by their mapstructure key so a failure can be traced
// back to the environment variable or config file entry that produced it:
//
//	type Settings struct {
//	    MaxEntries int `mapstructure:"cache_max_entries" validate:"gte=1"`
//	}
//	for _, f := range validation.Check(s) {
//	    // f.Field == "cache_max_entries"
//	}
package validation
