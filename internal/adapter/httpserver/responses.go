// Package httpserver contains the HTTP handlers and middleware for the
// demo's administrative and workload endpoints.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses and logs the
// failure with trace correlation so it can be joined with exported
// spans in the backend. Nothing here is fatal to the process.
func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrPoolExhausted):
		code = http.StatusServiceUnavailable
		codeStr = "POOL_EXHAUSTED"
	case errors.Is(err, domain.ErrPoolClosed):
		code = http.StatusServiceUnavailable
		codeStr = "POOL_CLOSED"
	case errors.Is(err, domain.ErrQueryFailed):
		codeStr = "QUERY_ERROR"
	}
	sc := trace.SpanContextFromContext(r.Context())
	LoggerFrom(r).Error("request failed",
		slog.String("code", codeStr),
		slog.Int("status", code),
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
		slog.Any("error", err),
	)
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
