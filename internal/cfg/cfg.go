package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/portfolio-api/internal/log"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"

	// MinAdminKeyLen is the shortest admin key accepted in production.
	MinAdminKeyLen = 32
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string

	Environment  string
	Debug        bool
	DatabasePath string

	CORSOrigins         string
	AllowedHosts        string
	AdminAPIKey         string
	AdminAPIKeySSMParam string
	MaxRequestSize      int64
	EnableRateLimiting  bool
	RateLimitCalls      int
	RateLimitPeriod     int
	ContactCalls        int
	ContactPeriod       int
	BruteForceMaxFails  int
	BruteForceBlock     int
	ProtectedPaths      string
	EnableHSTS          bool
	CSPReportURI        string
	TrustProxyHeaders   bool
	MaxTrackedClients   int
	SecurityEventBuffer int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8000, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on ops port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")

	fs.StringVar(&c.Environment, "environment", EnvDevelopment, "development|staging|production")
	fs.BoolVar(&c.Debug, "debug", false, "Echo unexpected error details in 500 responses (development only)")
	fs.StringVar(&c.DatabasePath, "database-path", "portfolio.db", "sqlite database file")

	fs.StringVar(&c.CORSOrigins, "cors-origins", "http://localhost:3000", "comma separated allowed CORS origins")
	fs.StringVar(&c.AllowedHosts, "allowed-hosts", "*", "comma separated allowed Host values (* disables the check)")
	fs.StringVar(&c.AdminAPIKey, "admin-api-key", "", "shared secret for admin routes")
	fs.StringVar(&c.AdminAPIKeySSMParam, "admin-api-key-ssm-param", "", "SSM SecureString parameter holding the admin key")
	fs.Int64Var(&c.MaxRequestSize, "max-request-size", 5_000_000, "max request body in bytes")
	fs.BoolVar(&c.EnableRateLimiting, "enable-rate-limiting", true, "Enable the global per-client rate limit")
	fs.IntVar(&c.RateLimitCalls, "rate-limit-calls", 100, "global requests per window")
	fs.IntVar(&c.RateLimitPeriod, "rate-limit-period", 60, "global window in seconds")
	fs.IntVar(&c.ContactCalls, "contact-rate-limit-calls", 5, "contact submissions per window")
	fs.IntVar(&c.ContactPeriod, "contact-rate-limit-period", 3600, "contact window in seconds")
	fs.IntVar(&c.BruteForceMaxFails, "brute-force-max-failures", 5, "auth failures in 15 minutes before a block")
	fs.IntVar(&c.BruteForceBlock, "brute-force-block-duration", 900, "block length in seconds")
	fs.StringVar(&c.ProtectedPaths, "protected-paths", "/api/projects,/api/contact", "comma separated path prefixes guarded by the lockout")
	fs.BoolVar(&c.EnableHSTS, "enable-hsts", false, "Send Strict-Transport-Security (required in production)")
	fs.StringVar(&c.CSPReportURI, "csp-report-uri", "", "report-uri appended to the Content-Security-Policy")
	fs.BoolVar(&c.TrustProxyHeaders, "trust-proxy-headers", true, "Read the client address from CF-Connecting-IP, X-Real-IP and X-Forwarded-For")
	fs.IntVar(&c.MaxTrackedClients, "max-tracked-clients", 100_000, "cap on identifiers per rate limiter (0 = no cap)")
	fs.IntVar(&c.SecurityEventBuffer, "security-event-buffer", 1024, "async security event queue (0 = synchronous)")
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				// never echo secrets
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// List splits a comma separated flag value, dropping empty entries.
func List(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c App) IsProduction() bool { return c.Environment == EnvProduction }

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
// In production it also refuses insecure settings. When the admin key comes
// from SSM its length is checked later by CheckAdminKey.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("invalid ENVIRONMENT %q (development|staging|production)", c.Environment))
	}
	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("DATABASE_PATH is required"))
	}
	// debug echoes internal error details to clients
	if c.Debug && c.Environment != EnvDevelopment {
		errs = append(errs, fmt.Errorf("DEBUG is only allowed in development (ENVIRONMENT=%q)", c.Environment))
	}

	// Defense limits
	if c.MaxRequestSize < 1 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_SIZE must be positive (got %d)", c.MaxRequestSize))
	}
	if c.RateLimitCalls < 1 || c.RateLimitPeriod < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_CALLS and RATE_LIMIT_PERIOD must be positive (got %d/%d)", c.RateLimitCalls, c.RateLimitPeriod))
	}
	if c.ContactCalls < 1 || c.ContactPeriod < 1 {
		errs = append(errs, fmt.Errorf("CONTACT_RATE_LIMIT_CALLS and CONTACT_RATE_LIMIT_PERIOD must be positive (got %d/%d)", c.ContactCalls, c.ContactPeriod))
	}
	if c.BruteForceMaxFails < 1 || c.BruteForceBlock < 1 {
		errs = append(errs, fmt.Errorf("BRUTE_FORCE_MAX_FAILURES and BRUTE_FORCE_BLOCK_DURATION must be positive"))
	}
	if c.MaxTrackedClients < 0 || c.SecurityEventBuffer < 0 {
		errs = append(errs, fmt.Errorf("MAX_TRACKED_CLIENTS and SECURITY_EVENT_BUFFER must not be negative"))
	}

	if c.IsProduction() {
		errs = append(errs, productionErrors(c)...)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// productionErrors lists settings the process refuses to start with in
// production.
func productionErrors(c App) []error {
	var errs []error
	if c.AdminAPIKeySSMParam == "" {
		if err := CheckAdminKey(c.Environment, c.AdminAPIKey); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range List(c.AllowedHosts) {
		if h == "*" {
			errs = append(errs, fmt.Errorf("ALLOWED_HOSTS must not contain * in production"))
			break
		}
	}
	for _, o := range List(c.CORSOrigins) {
		if strings.Contains(o, "localhost") || strings.Contains(o, "127.0.0.1") {
			errs = append(errs, fmt.Errorf("CORS_ORIGINS must not contain localhost in production (got %q)", o))
			break
		}
	}
	if !c.EnableHSTS {
		errs = append(errs, fmt.Errorf("ENABLE_HSTS must be true in production"))
	}
	return errs
}

// CheckAdminKey enforces the minimum key length in production.
func CheckAdminKey(environment, key string) error {
	if environment != EnvProduction {
		return nil
	}
	if len(key) < MinAdminKeyLen {
		return fmt.Errorf("ADMIN_API_KEY must be at least %d characters in production", MinAdminKeyLen)
	}
	return nil
}

// Warnings returns advisories that do not stop startup.
func Warnings(c App) []string {
	var out []string
	switch {
	case c.AdminAPIKey == "" && c.AdminAPIKeySSMParam == "":
		out = append(out, "ADMIN_API_KEY not set: admin routes will answer 503")
	case c.AdminAPIKey != "" && len(c.AdminAPIKey) < MinAdminKeyLen:
		out = append(out, fmt.Sprintf("ADMIN_API_KEY is shorter than %d characters", MinAdminKeyLen))
	}
	if c.Debug && c.Environment == EnvDevelopment {
		out = append(out, "DEBUG is on: internal error details are returned to clients")
	}
	return out
}
