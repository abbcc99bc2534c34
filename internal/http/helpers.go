package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	"bilancio/internal/sources"
	"bilancio/internal/storage"
)

const maxBodyBytes = 4 << 10

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", applog.FieldError, err)
	}
}

// writeError maps err to a status code. Server errors are logged and their
// details are not sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error:     "rate limit exceeded",
		RequestID: trace.GetRequestID(r.Context()),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sources.ErrCorrupt):
		// bad stored data, whatever the underlying validation error says
		return http.StatusInternalServerError
	case errors.Is(err, services.ErrMeterNotFound), errors.Is(err, storage.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrMissingPrice),
		errors.Is(err, core.ErrCurrencyMismatch),
		errors.Is(err, core.ErrUnknownMeterKind):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrMalformedInput),
		errors.Is(err, core.ErrEmptyID),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, services.ErrUnknownReport):
		return http.StatusBadRequest
	case errors.Is(err, amqp.ErrCircuitOpen), errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errUnavailable = errors.New("not configured")

// Query parameter parsers fill the parameters of a report request.
type paramParser func(r *http.Request, req *services.Request) error

func noParams(*http.Request, *services.Request) error { return nil }

// yearParams reads ?year=, defaulting to the current year.
func yearParams(r *http.Request, req *services.Request) error {
	year, err := queryInt(r, "year", time.Now().Year())
	req.Year = year
	return err
}

// yearMonthParams reads ?year=&month=, defaulting to the current month.
func yearMonthParams(r *http.Request, req *services.Request) error {
	now := time.Now()
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		return err
	}
	month, err := queryInt(r, "month", int(now.Month()))
	req.Year, req.Month = year, month
	return err
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", core.ErrMalformedInput, name)
	}
	return n, nil
}

// decodeJSON reads a small JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedInput, err)
	}
	return nil
}
