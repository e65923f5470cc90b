package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/portfolio-api/internal/version"
)

type ServerMetrics struct {
	reg            *prometheus.Registry
	handler        http.Handler
	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// request defense
	securityEventsTotal    *prometheus.CounterVec
	securityEventsDropped  prometheus.Counter
	ratelimitDeniedTotal   *prometheus.CounterVec
	ratelimitCapacityTotal *prometheus.CounterVec
	lockoutsTotal          prometheus.Counter
	lockoutDeniedTotal     prometheus.Counter
	honeypotHitsTotal      prometheus.Counter
	suspiciousTotal        *prometheus.CounterVec
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_date", "vcs_dirty", "go_version"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		securityEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Security events emitted by kind",
		}, []string{"kind"}),
		securityEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "security_events_dropped_total",
			Help: "Security events dropped because the async sink buffer was full",
		}),
		ratelimitDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}, []string{"limiter"}),
		ratelimitCapacityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter tracked-client capacity was reached",
		}, []string{"limiter"}),
		lockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bruteforce_lockouts_total",
			Help: "Clients blocked after repeated authentication failures",
		}),
		lockoutDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bruteforce_denied_total",
			Help: "Requests rejected because the client is locked out",
		}),
		honeypotHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "honeypot_hits_total",
			Help: "Requests to honeypot routes",
		}),
		suspiciousTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suspicious_requests_total",
			Help: "Requests rejected by signature",
		}, []string{"signature"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.errorsTotal,
		m.profilingActive,
		m.securityEventsTotal,
		m.securityEventsDropped,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.lockoutsTotal,
		m.lockoutDeniedTotal,
		m.honeypotHitsTotal,
		m.suspiciousTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncSecurityEvent(kind string) {
	m.securityEventsTotal.WithLabelValues(kind).Inc()
}

func (m *ServerMetrics) IncSecurityEventDropped() {
	m.securityEventsDropped.Inc()
}

func (m *ServerMetrics) IncRateLimitDenied(limiter string) {
	m.ratelimitDeniedTotal.WithLabelValues(limiter).Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity(limiter string) {
	m.ratelimitCapacityTotal.WithLabelValues(limiter).Inc()
}

func (m *ServerMetrics) IncLockout() {
	m.lockoutsTotal.Inc()
}

func (m *ServerMetrics) IncLockoutDenied() {
	m.lockoutDeniedTotal.Inc()
}

func (m *ServerMetrics) IncHoneypotHit() {
	m.honeypotHitsTotal.Inc()
}

// IncSuspicious counts a signature match. Signatures come from a fixed
// list, so the label stays bounded.
func (m *ServerMetrics) IncSuspicious(signature string) {
	m.suspiciousTotal.WithLabelValues(signature).Inc()
}

// RegisterTrackedGauge exposes a live count of tracked identifiers, read at
// scrape time from fn.
func (m *ServerMetrics) RegisterTrackedGauge(component string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "defense_tracked_clients",
		Help:        "Client identifiers currently held in memory by a defense component",
		ConstLabels: prometheus.Labels{"component": component},
	}, fn))
}
