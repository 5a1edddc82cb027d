// Package errors provides the standardized error taxonomy for the query gateway.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation failures — describe caller input, safe to expose.
	ErrCodeEntityNotFound ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeInvalidPlan    ErrorCode = "INVALID_PLAN"

	// Expected, recoverable admission-control conditions.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"

	// Infrastructure failures — detail stays server-side.
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeQueryFailed ErrorCode = "QUERY_FAILED"

	// Internal invariant violation, fatal to the request.
	ErrCodeCacheCorruption ErrorCode = "CACHE_CORRUPTION"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks across the pipeline.
var (
	ErrEntityNotFound    = errors.New("ENTITY_NOT_FOUND")
	ErrInvalidPlan       = errors.New("INVALID_PLAN")
	ErrRateLimitExceeded = errors.New("RATE_LIMIT_EXCEEDED")
	ErrCircuitOpen       = errors.New("CIRCUIT_OPEN")
	ErrTimeout           = errors.New("TIMEOUT")
	ErrQueryFailed       = errors.New("QUERY_FAILED")
	ErrCacheCorruption   = errors.New("CACHE_CORRUPTION")
)

// GatewayError is the structured application error carried through the
// pipeline until it is shaped into a wire response.
type GatewayError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Retryable  bool                   `json:"retryable"`
	RetryAfter time.Duration          `json:"retryAfter,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	cause      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("GatewayError[%s]: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match a GatewayError against the package sentinels.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrEntityNotFound:
		return e.Code == ErrCodeEntityNotFound
	case ErrInvalidPlan:
		return e.Code == ErrCodeInvalidPlan
	case ErrRateLimitExceeded:
		return e.Code == ErrCodeRateLimitExceeded
	case ErrCircuitOpen:
		return e.Code == ErrCodeCircuitOpen
	case ErrTimeout:
		return e.Code == ErrCodeTimeout
	case ErrQueryFailed:
		return e.Code == ErrCodeQueryFailed
	case ErrCacheCorruption:
		return e.Code == ErrCodeCacheCorruption
	}
	return false
}

// ==========================
// 2. Error Constructors
// ==========================

// NewEntityNotFoundError is returned when a place name cannot be resolved.
// Detail is caller input, so it is safe to surface.
func NewEntityNotFoundError(rawName, detail string) *GatewayError {
	return &GatewayError{
		Code:      ErrCodeEntityNotFound,
		Message:   fmt.Sprintf("unable to resolve location %q", rawName),
		Details:   detail,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPlanError is returned when plan construction rejects caller input.
func NewInvalidPlanError(detail string) *GatewayError {
	return &GatewayError{
		Code:      ErrCodeInvalidPlan,
		Message:   "query plan rejected",
		Details:   detail,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitExceededError carries explicit retry guidance.
func NewRateLimitExceededError(retryAfter time.Duration) *GatewayError {
	return &GatewayError{
		Code:       ErrCodeRateLimitExceeded,
		Message:    "request rate limit exceeded",
		Retryable:  true,
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC(),
	}
}

// NewCircuitOpenError is returned while the inference circuit rejects fast.
func NewCircuitOpenError(retryAfter time.Duration) *GatewayError {
	return &GatewayError{
		Code:       ErrCodeCircuitOpen,
		Message:    "upstream inference endpoint unavailable",
		Retryable:  true,
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC(),
	}
}

// NewTimeoutError wraps a deadline miss on a warehouse or inference call.
func NewTimeoutError(operation string, cause error) *GatewayError {
	return &GatewayError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("%s timed out", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewQueryFailedError wraps a warehouse failure. The cause is logged keyed by
// trace ID and never forwarded to the caller.
func NewQueryFailedError(cause error) *GatewayError {
	return &GatewayError{
		Code:      ErrCodeQueryFailed,
		Message:   "query execution failed",
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewCacheCorruptionError flags a broken cache invariant. Fatal to the
// request, logged at high severity, never silently ignored.
func NewCacheCorruptionError(detail string) *GatewayError {
	return &GatewayError{
		Code:      ErrCodeCacheCorruption,
		Message:   "response cache invariant violated",
		Details:   detail,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification
// ==========================

// Normalize ensures any error becomes a GatewayError before response shaping.
func Normalize(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &GatewayError{
		Code:      ErrCodeInternal,
		Message:   "unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// IsCallerSafe reports whether the error's details describe caller input and
// may be exposed verbatim. Everything else is sanitized to a generic message
// plus the trace ID.
func IsCallerSafe(code ErrorCode) bool {
	switch code {
	case ErrCodeEntityNotFound, ErrCodeInvalidPlan, ErrCodeRateLimitExceeded, ErrCodeCircuitOpen:
		return true
	}
	return false
}
