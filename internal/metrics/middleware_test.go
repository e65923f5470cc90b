package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_FirstStatusAndSize(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("slow down"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	l := labelsOf(gatherMetric(t, m.reg, "http_requests_total").GetMetric()[0])
	if l["status"] != "429" {
		t.Fatalf("status label = %q, want the first status written", l["status"])
	}
	h2 := gatherMetric(t, m.reg, "http_response_size_bytes").GetMetric()[0].GetHistogram()
	if h2.GetSampleSum() != float64(len("slow down")) {
		t.Fatalf("response size = %f", h2.GetSampleSum())
	}
}

func TestMiddleware_ChiRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/api/projects/{slug}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	h := m.Middleware(r)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/projects/a", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/projects/b", nil))

	got := counterValue(t, m.reg, "http_requests_total",
		map[string]string{"method": "GET", "route": "/api/projects/{slug}", "status": "200"})
	if got != 2 {
		t.Fatalf("http_requests_total = %f, want 2", got)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for _, p := range []string{"/wp-admin", "/.git/config", "/random"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	f := gatherMetric(t, m.reg, "http_requests_total")
	if len(f.GetMetric()) != 1 {
		t.Fatalf("series = %d, want one unmatched series", len(f.GetMetric()))
	}
	if l := labelsOf(f.GetMetric()[0]); l["route"] != "unmatched" || l["status"] != "404" {
		t.Fatalf("labels = %v", l)
	}
}

func TestMiddleware_ErrorCounter(t *testing.T) {
	tests := []struct {
		status int
		want   float64
	}{
		{http.StatusOK, 0},
		{http.StatusTooManyRequests, 0},
		{http.StatusInternalServerError, 1},
		{http.StatusServiceUnavailable, 1},
	}
	for _, tt := range tests {
		m := New()
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if got := counterValue(t, m.reg, "http_errors_total", nil); got != tt.want {
			t.Errorf("status %d: http_errors_total = %f, want %f", tt.status, got, tt.want)
		}
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	after := gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	if during != 1 || after != 0 {
		t.Fatalf("inflight during=%f after=%f", during, after)
	}
}

func TestTraceExemplar(t *testing.T) {
	if traceExemplar(context.Background()) != nil {
		t.Fatal("no span should give no exemplar")
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ex := traceExemplar(trace.ContextWithSpanContext(context.Background(), sc))
	if ex == nil || ex["trace_id"] != sc.TraceID().String() {
		t.Fatalf("exemplar = %v", ex)
	}

	unsampled := trace.NewSpanContext(trace.SpanContextConfig{TraceID: trace.TraceID{1}, SpanID: trace.SpanID{1}})
	if traceExemplar(trace.ContextWithSpanContext(context.Background(), unsampled)) != nil {
		t.Fatal("unsampled span should give no exemplar")
	}
}
