// Package defense owns the request-defense state (rate-limit windows,
// failure history, blocks) and composes the guards into one ordered
// middleware chain.
//
// A State is created at process start and closed at shutdown. Nothing in the
// pipeline is package-global, so tests build as many independent States as
// they need.
package defense

import (
	"context"
	"net/http"
	"time"

	"github.com/keithlinneman/portfolio-api/internal/auth"
	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/honeypot"
	"github.com/keithlinneman/portfolio-api/internal/httpmw"
	"github.com/keithlinneman/portfolio-api/internal/lockout"
	"github.com/keithlinneman/portfolio-api/internal/ratelimit"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

const (
	ContactLimiterName = "contact"
	GlobalLimiterName  = "global"

	DefaultMaxRequestSize = 5_000_000
	DefaultRateLimitCalls = 100
	DefaultRateLimitPer   = time.Minute
	DefaultContactCalls   = 5
	DefaultContactPer     = time.Hour
	DefaultContactPath    = "/api/contact"
)

type Config struct {
	AdminAPIKey string

	TrustProxyHeaders bool
	AllowedHosts      []string
	CORSOrigins       []string
	MaxRequestSize    int64

	EnableRateLimiting bool
	RateLimitCalls     int
	RateLimitPeriod    time.Duration
	ContactCalls       int
	ContactPeriod      time.Duration
	ContactPath        string

	MaxFailures    int
	BlockDuration  time.Duration
	ProtectedPaths []string

	Signatures []string

	HSTS         bool
	CSPReportURI string

	// MaxTrackedClients caps each limiter's map; 0 means no cap.
	MaxTrackedClients int
	// SweepInterval overrides the eviction sweep period of every tracker.
	SweepInterval time.Duration

	// Now is the clock shared by every tracker; nil means time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = DefaultMaxRequestSize
	}
	if c.RateLimitCalls <= 0 {
		c.RateLimitCalls = DefaultRateLimitCalls
	}
	if c.RateLimitPeriod <= 0 {
		c.RateLimitPeriod = DefaultRateLimitPer
	}
	if c.ContactCalls <= 0 {
		c.ContactCalls = DefaultContactCalls
	}
	if c.ContactPeriod <= 0 {
		c.ContactPeriod = DefaultContactPer
	}
	if c.ContactPath == "" {
		c.ContactPath = DefaultContactPath
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = lockout.DefaultThreshold
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = lockout.DefaultBlockFor
	}
	if len(c.ProtectedPaths) == 0 {
		c.ProtectedPaths = lockout.DefaultProtectedPaths
	}
	if c.Signatures == nil {
		c.Signatures = httpmw.DefaultSignatures
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Hooks receive counts for metrics. Any field may be nil.
type Hooks struct {
	RateLimited     func(limiter string)
	LimiterCapacity func(limiter string)
	Lockout         func()
	LockoutDenied   func()
	Honeypot        func()
	Suspicious      func(signature string)
}

// State is the pipeline's shared, process-local state.
type State struct {
	cfg    Config
	hooks  Hooks
	events *secevent.Emitter
	cancel context.CancelFunc

	Global  *ratelimit.Limiter // nil when rate limiting is disabled
	Contact *ratelimit.Limiter
	Lockout *lockout.Guard
	Gate    *auth.Gate
}

// New builds the State and starts the eviction sweeps. They stop on Close
// or when ctx is cancelled. events may be nil.
func New(ctx context.Context, cfg Config, events *secevent.Emitter, hooks Hooks) *State {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(ctx)

	s := &State{cfg: cfg, hooks: hooks, events: events, cancel: cancel}

	s.Lockout = lockout.New(ctx,
		lockout.WithThreshold(cfg.MaxFailures),
		lockout.WithBlockDuration(cfg.BlockDuration),
		lockout.WithProtectedPaths(cfg.ProtectedPaths...),
		lockout.WithSweepInterval(cfg.SweepInterval),
		lockout.WithClock(cfg.Now),
	)
	s.Gate = auth.New(cfg.AdminAPIKey, s.Lockout, events)

	if cfg.EnableRateLimiting {
		s.Global = s.newLimiter(ctx, GlobalLimiterName, cfg.RateLimitCalls, cfg.RateLimitPeriod, nil, true)
	}
	s.Contact = s.newLimiter(ctx, ContactLimiterName, cfg.ContactCalls, cfg.ContactPeriod,
		ratelimit.MethodPath(http.MethodPost, cfg.ContactPath), false)

	return s
}

func (s *State) newLimiter(ctx context.Context, name string, calls int, period time.Duration, scope func(*http.Request) bool, headers bool) *ratelimit.Limiter {
	opts := []ratelimit.Option{
		ratelimit.WithName(name),
		ratelimit.WithWindow(calls, period),
		ratelimit.WithMaxClients(s.cfg.MaxTrackedClients),
		ratelimit.WithSweepInterval(s.cfg.SweepInterval),
		ratelimit.WithClock(s.cfg.Now),
		ratelimit.WithEvents(s.events),
		ratelimit.WithHeaders(headers),
	}
	if scope != nil {
		opts = append(opts, ratelimit.WithScope(scope))
	}
	if fn := s.hooks.RateLimited; fn != nil {
		opts = append(opts, ratelimit.WithOnDenied(func(string) { fn(name) }))
	}
	if fn := s.hooks.LimiterCapacity; fn != nil {
		opts = append(opts, ratelimit.WithOnCapacity(func() { fn(name) }))
	}
	return ratelimit.New(ctx, opts...)
}

// Close stops the sweeps. The State must not be used afterwards.
func (s *State) Close() { s.cancel() }

func (s *State) Events() *secevent.Emitter { return s.events }

// ClientIP resolves the client identifier every later stage keys on.
func (s *State) ClientIP() httpmw.Middleware {
	return clientip.Middleware(clientip.Options{TrustProxyHeaders: s.cfg.TrustProxyHeaders})
}

// SecurityHeaders wraps every response, including denials from the guards.
func (s *State) SecurityHeaders() httpmw.Middleware {
	return httpmw.SecurityHeaders(httpmw.SecurityHeadersOptions{
		HSTS:         s.cfg.HSTS,
		CSPReportURI: s.cfg.CSPReportURI,
	})
}

// Guards returns the request guards outermost first:
// trusted host, CORS, request size, lockout, global limit, contact limit,
// suspicious patterns. The lockout check runs before the limiters so a
// locked client always gets the lockout Retry-After. Disabled stages are
// nil and skipped by httpmw.Chain.
func (s *State) Guards() []httpmw.Middleware {
	var global httpmw.Middleware
	if s.Global != nil {
		global = s.Global.Middleware
	}
	return []httpmw.Middleware{
		httpmw.TrustedHost(s.cfg.AllowedHosts, s.events),
		httpmw.CORS(s.cfg.CORSOrigins),
		httpmw.RequestSize(s.cfg.MaxRequestSize, s.events),
		s.Lockout.Middleware(s.events, lockout.Hooks{
			OnBlock:  func(string) { call(s.hooks.Lockout) },
			OnDenied: func(string) { call(s.hooks.LockoutDenied) },
		}),
		global,
		s.Contact.Middleware,
		httpmw.SuspiciousRequests(s.cfg.Signatures, s.events, s.hooks.Suspicious),
	}
}

// RequireAdmin guards admin routes with the shared secret.
func (s *State) RequireAdmin(next http.Handler) http.Handler { return s.Gate.Require(next) }

// Honeypot is the shared handler for every trap route.
func (s *State) Honeypot() http.HandlerFunc {
	return honeypot.Handler(s.events, func(string) { call(s.hooks.Honeypot) })
}

// Tracked reports how many identifiers each tracker holds, keyed by
// component name.
func (s *State) Tracked() map[string]int {
	out := map[string]int{ContactLimiterName: s.Contact.Tracked()}
	if s.Global != nil {
		out[GlobalLimiterName] = s.Global.Tracked()
	}
	failing, blocked := s.Lockout.Tracked()
	out["lockout_failing"] = failing
	out["lockout_blocked"] = blocked
	return out
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
