package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/portfolio-api/internal/honeypot"
	"github.com/keithlinneman/portfolio-api/internal/httpmw"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

// NewHandler builds the public handler: the defense pipeline around the
// chi router. main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	d := opts.Defense

	r := chi.NewRouter()

	// Compress JSON responses
	r.Use(middleware.Compress(5, "application/json"))

	// Rename the server span to the chi route pattern once it is known
	r.Use(httpmw.AnnotateHTTPRoute)

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	table := opts.Honeypots
	if table == nil {
		table = honeypot.Routes
	}
	honeypot.Register(r, table, d.Honeypot())

	// unmatched paths and methods get the same body as a honeypot hit
	r.NotFound(respond.NotFound)
	r.MethodNotAllowed(respond.NotFound)

	// Outermost first. Everything from TrustedHost inward can reject, so
	// SecurityHeaders, request IDs and access logging sit outside them.
	mws := []httpmw.Middleware{
		d.SecurityHeaders(),
		recoverMW(opts),
		httpmw.RequestID("X-Request-Id"),
		d.ClientIP(),
		httpmw.EnsureRouteContext,
		tracing,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
		httpmw.AccessLog(),
	}
	mws = append(mws, d.Guards()...)

	return httpmw.Chain(r, mws...)
}

func recoverMW(opts *Options) httpmw.Middleware {
	return httpmw.Recover(opts.Logger, opts.Boundary, opts.OnPanic)
}

func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// dont trace health checks
			return r.URL.Path != "/health"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span to the route pattern later
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)
}

// Server timeout defaults.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	if opts.Defense == nil {
		return nil, xerrors.New("httpserver: Defense is required")
	}
	port := opts.Port
	if port == 0 {
		port = 8000
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
