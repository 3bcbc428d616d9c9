package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/medinsight/medinsight/internal/config"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestLoggingMiddlewareWritesTraceAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := TraceMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/answer", nil)
	req.Header.Set(traceHeader, "trace-9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"trace-9"`) {
		t.Fatalf("log output missing trace id: %s", out)
	}
	if !strings.Contains(out, `"status":502`) || !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("log output = %s", out)
	}
}

func TestTraceAttrIsEmptyWithoutTraceID(t *testing.T) {
	if attr := TraceAttr(context.Background()); attr.Key != "" {
		t.Fatalf("TraceAttr() = %v, want empty attr", attr)
	}
	if attr := TraceAttr(ContextWithTraceID(context.Background(), "abc")); attr.Value.String() != "abc" {
		t.Fatalf("TraceAttr() = %v", attr)
	}
}

func TestRouteLabelCollapsesArtifactKeys(t *testing.T) {
	if got := routeLabel("/v1/artifacts/answers/2026/10/19/x.parquet"); got != "/v1/artifacts/{key}" {
		t.Fatalf("routeLabel() = %q", got)
	}
	if got := routeLabel("/v1/answer"); got != "/v1/answer" {
		t.Fatalf("routeLabel() = %q", got)
	}
}

func TestObserveAttemptCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(attemptsTotal.WithLabelValues("timeout"))
	ObserveAttempt("timeout")
	ObserveAttempt("timeout")
	if got := testutil.ToFloat64(attemptsTotal.WithLabelValues("timeout")) - before; got != 2 {
		t.Fatalf("attempts delta = %v, want 2", got)
	}
}

func TestObserveLLMRequestLabelsErrors(t *testing.T) {
	before := testutil.ToFloat64(llmRequestsTotal.WithLabelValues("narrate", "error"))
	ObserveLLMRequest("narrate", errors.New("boom"), 10*time.Millisecond)
	if got := testutil.ToFloat64(llmRequestsTotal.WithLabelValues("narrate", "error")) - before; got != 1 {
		t.Fatalf("llm error delta = %v, want 1", got)
	}
}

func TestNewLoggerTagsServiceAndProfile(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "medinsight-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	NewLogger(cfg, &buf).Info("hello")
	out := buf.String()
	if !strings.Contains(out, `"service":"medinsight-api"`) || !strings.Contains(out, `"profile":"test"`) {
		t.Fatalf("log output = %s", out)
	}
}
