package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Budget and fallback errors
const (
	// ErrCodeBudgetExceeded indicates the fixture path did not settle within its budget
	// and no passthrough could be used.
	ErrCodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// ErrCodeFallbackFailed indicates the passthrough operation failed after a timeout.
	ErrCodeFallbackFailed ErrorCode = "FALLBACK_FAILED"
	// ErrCodePrimaryFailed indicates the fixture operation failed for a reason other than timing out.
	ErrCodePrimaryFailed ErrorCode = "PRIMARY_FAILED"
	// ErrCodeTimeout indicates a generic timeout reported by an operation itself.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Configuration errors
const (
	// ErrCodeInvalidConfig indicates a configuration value was rejected.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeExternalService indicates an error from the passthrough backend.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeBudgetExceeded:  true,
	ErrCodeTimeout:         true,
	ErrCodeFallbackFailed:  true,
	ErrCodeExternalService: true,
	ErrCodePrimaryFailed:   false,
	ErrCodeInternal:        false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// IsTimeoutCode reports whether the code describes a timing failure.
func IsTimeoutCode(code ErrorCode) bool {
	return code == ErrCodeBudgetExceeded || code == ErrCodeTimeout
}
