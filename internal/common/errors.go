// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Storage availability. Systemic: aborts the remaining batch rather
	// than failing every row individually.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Oracle errors.
	ErrOracleUnreachable = errors.New("oracle unreachable")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a malformed input row. Row-scoped: the row is
// recorded as failed in the batch summary, never aborts the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError naming the offending field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// OracleErrorKind distinguishes oracle failure modes.
type OracleErrorKind string

const (
	// OracleFatal is a non-transient failure (malformed request, auth
	// failure, unrecognized category in the response). Never retried.
	OracleFatal OracleErrorKind = "FATAL"
	// OracleExhausted means transient failures (rate limit, timeout,
	// 5xx) outlasted the retry budget.
	OracleExhausted OracleErrorKind = "EXHAUSTED"
)

// OracleError reports a failed classification call.
type OracleError struct {
	Err  error
	Kind OracleErrorKind
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Kind, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// NewOracleError wraps err with the given kind.
func NewOracleError(kind OracleErrorKind, err error) error {
	return &OracleError{Kind: kind, Err: err}
}

// RegistryConflict means a concurrent alias write lost a race. Retried once
// internally; the winning write is then treated as success.
var RegistryConflict = errors.New("vendor registry conflict")

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	var oracleErr *OracleError
	if errors.As(err, &oracleErr) {
		return oracleErr.Kind != OracleFatal
	}

	return false
}
