package logger

import (
	"time"
)

// Standard field keys used by the resilience layer.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldOperation = "operation"
	FieldRoute     = "route"
	FieldMethod    = "method"
	FieldScenario  = "scenario"
	FieldSeed      = "seed"
	FieldSource    = "source"
	FieldBudget    = "budget_ms"
	FieldDuration  = "duration_ms"
	FieldTimedOut  = "timed_out"
	FieldError     = "error"
	FieldRemoved   = "removed"
	FieldIndex     = "index"
)

// Fields builds a map from alternating key-value pairs. Non-string keys and a
// trailing odd value are dropped.
//
//	log.Info("swept", logger.Fields("removed", 3))
func Fields(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// DurationFields creates fields for a timed operation.
func DurationFields(op string, d time.Duration) map[string]any {
	return map[string]any{
		FieldOperation: op,
		FieldDuration:  d.Milliseconds(),
	}
}

// MergeWithError adds an error field to an existing map.
func MergeWithError(fields map[string]any, err error) map[string]any {
	if fields == nil {
		fields = make(map[string]any)
	}
	if err != nil {
		fields[FieldError] = err.Error()
	}
	return fields
}
