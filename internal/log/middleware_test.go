package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Component: ComponentApp, Handler: slog.NewTextHandler(buf, nil)})
}

func TestMiddlewareChainEnrichesLogger(t *testing.T) {
	var buf bytes.Buffer
	var got *Logger
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		got.InfoContext(r.Context(), "handled")
	})
	withID := RequestIDMiddleware(func(*http.Request) string { return "req_1" })
	h := Middleware(newBufferLogger(&buf))(withID(ComponentMiddleware(ComponentHTTP)(handler)))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("context logger = %+v", got)
	}
	line := buf.String()
	if !strings.Contains(line, "request_id=req_1") || !strings.Contains(line, "component=http") {
		t.Errorf("log line = %q", line)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if got := FromContext(context.Background()); got == nil || got.Component() != "unknown" {
		t.Errorf("fallback logger = %+v", got)
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))
	sl.LogError(context.Background(), "Request failed", errors.New("disk gone"), ComponentHTTP, "GET /api/stats",
		NewFields().WithRequestID("req_2"))

	line := buf.String()
	for _, want := range []string{"level=ERROR", `error="disk gone"`, "component=http", `operation="GET /api/stats"`, "request_id=req_2"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %s in %q", want, line)
		}
	}
	if strings.Count(line, "component=") != 1 {
		t.Errorf("component repeated in %q", line)
	}
}
