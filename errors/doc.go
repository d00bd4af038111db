// Package errors provides the structured error type used across fixturekit.
// AppError carries a machine-readable code, a retryable flag and the HTTP
// status a transport layer should map it to. Budget, fallback and primary
// failures of the resilience layer each have their own code.
package errors
