// Package http provides HTTP server and handler implementations.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"hisab/internal/calc"
	"hisab/internal/core"
	"hisab/internal/ledger"
	"hisab/internal/log"
	"hisab/internal/middleware/gate"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

// errorStatus maps an error to the status code the API reports for it.
func errorStatus(err error) int {
	var commitErr *ledger.CommitError
	switch {
	case errors.As(err, &commitErr):
		return http.StatusBadGateway
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, gate.ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrProfileNotFound),
		errors.Is(err, ledger.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrCategoryExists),
		errors.Is(err, ledger.ErrDuplicateID),
		errors.Is(err, ledger.ErrDefaultProfile):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidCurrency),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrNoteTooLong),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidLanguage),
		errors.Is(err, core.ErrInvalidTheme),
		errors.Is(err, calc.ErrEmptyExpression),
		errors.Is(err, calc.ErrInvalidExpression),
		errors.Is(err, ledger.ErrEmptyID),
		errors.Is(err, errUnknownCurrency),
		errors.Is(err, errEmptyState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and answers with a JSON error. 5xx
// responses never echo internal error text, except 502 which names the
// failed commit.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	switch {
	case status == http.StatusBadGateway:
		msg = "could not save the change; it was undone"
		log.FromContext(r.Context()).WarnContext(r.Context(), "Store commit failed",
			log.NewFields().WithError(err).WithOperation(log.OpCommit).ToSlice()...)
	case status >= http.StatusInternalServerError:
		msg = "internal error"
		logger := log.FromContext(r.Context())
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, logger.Component(), r.Pattern,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
	}
	ErrorResponse(status, msg).Write(w)
}
