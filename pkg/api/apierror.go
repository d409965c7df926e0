// Package api exposes the Brikk coordination HTTP surface: the standard
// error envelope, security headers, the edge limiter, and the staged
// request pipeline behind POST /v1/coordination.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/brikk-labs/brikk/pkg/auth"
)

// ErrorCode classifies a rejection. The set is part of the API contract.
type ErrorCode string

const (
	CodeProtocolError   ErrorCode = "protocol_error"
	CodeValidationError ErrorCode = "validation_error"
	CodeAuthError       ErrorCode = "auth_error"
	CodeRateLimited     ErrorCode = "rate_limited"
	CodeInternalError   ErrorCode = "internal_error"
)

// ErrorDetail locates one field failure inside a validation rejection.
type ErrorDetail struct {
	FieldPath string `json:"field_path"`
	Message   string `json:"message"`
}

// ErrorBody is the standard error envelope. Every rejected response
// carries it, always with a request id for support correlation.
type ErrorBody struct {
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	RequestID string        `json:"request_id"`
	Details   []ErrorDetail `json:"details,omitempty"`
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string, details ...ErrorDetail) {
	body := ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: auth.GetRequestID(r.Context()),
		Details:   details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteUnauthorized writes a 401 auth_error.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "authentication required"
	}
	WriteError(w, r, http.StatusUnauthorized, CodeAuthError, detail)
}

// WriteInternal writes a 500 internal_error. The err is logged with the
// request id but never exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error",
		"request_id", auth.GetRequestID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	WriteError(w, r, http.StatusInternalServerError, CodeInternalError,
		"an unexpected error occurred")
}
