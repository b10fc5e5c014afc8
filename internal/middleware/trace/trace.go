// Package trace tags every request with an id and logs its start and end.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"hisab/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	RequestIDKey    ContextKey = "request_id"
	RequestIDHeader            = "X-Request-ID"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.Logger
	requests  atomic.Int64
	inFlight  atomic.Int64
}

func NewMiddleware(logger *log.Logger, extractIP func(*http.Request) string) *Middleware {
	if logger == nil {
		logger = log.NewDiscard()
	}
	return &Middleware{extractIP: extractIP, logger: logger.WithComponent(log.ComponentTrace)}
}

// Middleware reuses a well-formed incoming X-Request-ID or generates one,
// echoes it on the response and stores a logger carrying it in the context.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	withLogger := log.Middleware(m.logger)(log.RequestIDMiddleware(func(r *http.Request) string { return GetRequestID(r.Context()) })(m.observe(next)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		withLogger.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe logs the start and end of the request and keeps the counters.
func (m *Middleware) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		sl := log.NewStructuredLogger(log.FromContext(ctx))
		sl.LogHTTPStart(ctx, r, clientIP)

		m.requests.Add(1)
		m.inFlight.Add(1)
		defer m.inFlight.Add(-1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		sl.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Metrics tracks request counts
type Metrics struct {
	TotalRequests int64 `json:"totalRequests"`
	InFlight      int64 `json:"inFlight"`
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests: m.requests.Load(),
		InFlight:      m.inFlight.Load(),
	}
}
