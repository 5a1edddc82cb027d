// internal/common/errors/handler.go
package errors

import (
	"context"
	"math"
	"time"

	"emissions-gateway/internal/common/tracing"
)

// ErrorResponse is the wire shape returned to tool callers.
// retry_after is present only for RATE_LIMIT_EXCEEDED and CIRCUIT_OPEN.
type ErrorResponse struct {
	ErrorKind  string `json:"error_kind"`
	Message    string `json:"message"`
	TraceID    string `json:"trace_id"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds, rounded up
}

// Handler maps pipeline errors to wire responses while logging sanitized
// detail server-side keyed by trace ID.
type Handler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewHandler(logger Logger) *Handler {
	return &Handler{logger: logger}
}

// Shape converts an error into the caller-facing response. Validation
// failures keep their detail; infrastructure failures are reduced to a
// generic message, with the full cause logged under the trace ID.
func (h *Handler) Shape(ctx context.Context, err error) *ErrorResponse {
	gwErr := Normalize(err)
	traceID := tracing.FromContext(ctx)

	resp := &ErrorResponse{
		ErrorKind: string(gwErr.Code),
		TraceID:   traceID,
	}

	if IsCallerSafe(gwErr.Code) {
		resp.Message = gwErr.Message
		if gwErr.Details != "" {
			resp.Message = gwErr.Message + ": " + gwErr.Details
		}
		if gwErr.RetryAfter > 0 {
			resp.RetryAfter = int(math.Ceil(gwErr.RetryAfter.Seconds()))
		}
		h.logger.Warn("request rejected", map[string]interface{}{
			"traceId":   traceID,
			"errorKind": string(gwErr.Code),
			"details":   gwErr.Details,
		})
		return resp
	}

	resp.Message = "internal error, contact support with the trace id"
	fields := map[string]interface{}{
		"traceId":   traceID,
		"errorKind": string(gwErr.Code),
		"message":   gwErr.Message,
		"details":   gwErr.Details,
		"timestamp": gwErr.Timestamp.Format(time.RFC3339),
	}
	if cause := gwErr.Unwrap(); cause != nil {
		fields["cause"] = cause.Error()
	}
	h.logger.Error("request failed", fields)
	return resp
}
