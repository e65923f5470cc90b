package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute keeps scanner traffic from minting one series per path.
const unmatchedRoute = "unmatched"

// Middleware records inflight requests, totals by status, latency with a
// trace exemplar, response size and 5xx errors, all labelled by the chi route
// pattern rather than the raw path.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()
		snoop := httpsnoop.CaptureMetrics(next, w, r)

		method, route := r.Method, routeLabel(r)
		m.reqTotal.WithLabelValues(method, route, strconv.Itoa(snoop.Code)).Inc()
		if snoop.Code >= http.StatusInternalServerError {
			m.errorsTotal.WithLabelValues(method, route).Inc()
		}
		observe(m.reqDur.WithLabelValues(method, route), snoop.Duration.Seconds(), traceExemplar(r.Context()))
		m.respBytes.WithLabelValues(method, route).Observe(float64(snoop.Written))
	})
}

// routeLabel reads the pattern chi filled in while routing. The route
// context is shared by pointer, so it is visible here after next returns.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

func observe(o prometheus.Observer, v float64, ex prometheus.Labels) {
	if eo, ok := o.(prometheus.ExemplarObserver); ok && ex != nil {
		eo.ObserveWithExemplar(v, ex)
		return
	}
	o.Observe(v)
}

// if a sampled trace is present attach its trace_id as an exemplar
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
