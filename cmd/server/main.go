package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/portfolio-api/internal/api"
	"github.com/keithlinneman/portfolio-api/internal/cfg"
	"github.com/keithlinneman/portfolio-api/internal/defense"
	"github.com/keithlinneman/portfolio-api/internal/health"
	"github.com/keithlinneman/portfolio-api/internal/httpserver"
	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/metrics"
	"github.com/keithlinneman/portfolio-api/internal/opshttp"
	"github.com/keithlinneman/portfolio-api/internal/otelx"
	"github.com/keithlinneman/portfolio-api/internal/prof"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
	"github.com/keithlinneman/portfolio-api/internal/store"
	v "github.com/keithlinneman/portfolio-api/internal/version"
	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

const (
	appName   = "portfolio-api"
	component = "server"

	// time for the load balancer to notice /-/ready failing
	drainPeriod = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	var envFile string

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file; real environment variables win")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, commit_date=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	if err := cfg.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "env file error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, "PORTFOLIO_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           vi.Short(),
		Environment:       conf.Environment,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		Color:             conf.Environment == cfg.EnvDevelopment,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	for _, w := range cfg.Warnings(conf) {
		L.Warn(ctx, "configuration warning", "warning", w)
	}

	// admin_api_key is redacted by the logger
	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"environment", conf.Environment,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"database_path", conf.DatabasePath,
		"allowed_hosts", conf.AllowedHosts,
		"cors_origins", conf.CORSOrigins,
		"enable_rate_limiting", conf.EnableRateLimiting,
		"rate_limit", fmt.Sprintf("%d/%ds", conf.RateLimitCalls, conf.RateLimitPeriod),
		"contact_limit", fmt.Sprintf("%d/%ds", conf.ContactCalls, conf.ContactPeriod),
		"brute_force", fmt.Sprintf("%d fails -> %ds", conf.BruteForceMaxFails, conf.BruteForceBlock),
		"enable_hsts", conf.EnableHSTS,
		"trust_proxy_headers", conf.TrustProxyHeaders,
		"enable_pprof", conf.EnablePprof,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
	)

	adminKey, err := resolveAdminKey(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to resolve admin api key")
		os.Exit(1)
	}
	if err := cfg.CheckAdminKey(conf.Environment, adminKey); err != nil {
		L.Error(ctx, err, "admin api key rejected")
		os.Exit(1)
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, component, &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Version:       vi.Version,
		Environment:   conf.Environment,
		Tags: map[string]string{
			"component": component,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer stopProf()

	// local collector only, hence insecure
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:     conf.EnableTracing,
		Endpoint:    conf.OTLPEndpoint,
		Insecure:    true,
		Sample:      conf.TraceSample,
		Service:     appName,
		Component:   component,
		Version:     vi.Version,
		Environment: conf.Environment,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	st, err := store.Open(ctx, conf.DatabasePath)
	if err != nil {
		L.Error(ctx, err, "failed to open database", "database_path", conf.DatabasePath)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			L.Error(context.Background(), err, "database close")
		}
	}()

	// security events: structured log lines, optionally off the request path
	evL := L.With("component", "security")
	var sink secevent.Sink = secevent.LogSink{L: evL}
	var async *secevent.AsyncSink
	if conf.SecurityEventBuffer > 0 {
		async = secevent.NewAsyncSink(sink, conf.SecurityEventBuffer,
			secevent.WithOnDrop(m.IncSecurityEventDropped),
			secevent.WithDropReport(10*time.Second, func(total uint64) {
				evL.Warn(context.Background(), "security event buffer full, dropping events", "dropped_total", total)
			}),
		)
		sink = async
	}
	events := secevent.New(sink,
		secevent.WithObserver(func(k secevent.Kind) { m.IncSecurityEvent(string(k)) }),
		secevent.WithPanicHandler(func(p any) {
			evL.Warn(context.Background(), "security event sink panicked", "panic", fmt.Sprint(p))
		}),
	)

	d := defense.New(ctx, defense.Config{
		AdminAPIKey:        adminKey,
		TrustProxyHeaders:  conf.TrustProxyHeaders,
		AllowedHosts:       cfg.List(conf.AllowedHosts),
		CORSOrigins:        cfg.List(conf.CORSOrigins),
		MaxRequestSize:     conf.MaxRequestSize,
		EnableRateLimiting: conf.EnableRateLimiting,
		RateLimitCalls:     conf.RateLimitCalls,
		RateLimitPeriod:    time.Duration(conf.RateLimitPeriod) * time.Second,
		ContactCalls:       conf.ContactCalls,
		ContactPeriod:      time.Duration(conf.ContactPeriod) * time.Second,
		MaxFailures:        conf.BruteForceMaxFails,
		BlockDuration:      time.Duration(conf.BruteForceBlock) * time.Second,
		ProtectedPaths:     cfg.List(conf.ProtectedPaths),
		HSTS:               conf.EnableHSTS,
		CSPReportURI:       conf.CSPReportURI,
		MaxTrackedClients:  conf.MaxTrackedClients,
	}, events, defense.Hooks{
		RateLimited:     m.IncRateLimitDenied,
		LimiterCapacity: m.IncRateLimitCapacity,
		Lockout:         m.IncLockout,
		LockoutDenied:   m.IncLockoutDenied,
		Honeypot:        m.IncHoneypotHit,
		Suspicious:      m.IncSuspicious,
	})
	defer d.Close()

	for name := range d.Tracked() {
		m.RegisterTrackedGauge(name, func() float64 { return float64(d.Tracked()[name]) })
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Ping("database", st, 2*time.Second),
	)

	routes := api.New(st, d.RequireAdmin, events, vi.Version)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:    L,
		Port:      conf.HTTPPort,
		Defense:   d,
		Boundary:  &respond.Boundary{Debug: conf.Debug},
		OnPanic:   m.IncHttpPanic,
		MetricsMW: m.Middleware,
		APIRoutes: routes.RegisterRoutes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// ops listener rejects public peers itself; the security group is the
	// first line
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		AllowPublic:  conf.Environment == cfg.EnvDevelopment,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its timeout if this mattered
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	if conf.Environment != cfg.EnvDevelopment {
		L.Info(context.Background(), "draining before shutdown", "period", drainPeriod.String())
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(drainPeriod):
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	d.Close()
	if async != nil {
		if err := async.Close(shutdownCtx); err != nil {
			L.Error(context.Background(), err, "security event flush")
		}
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	L.Info(context.Background(), "shutdown complete")
}

// resolveAdminKey returns the key from config, or from SSM Parameter Store
// when a parameter name is set.
func resolveAdminKey(ctx context.Context, conf cfg.App) (string, error) {
	if conf.AdminAPIKeySSMParam == "" {
		return conf.AdminAPIKey, nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", xerrors.Wrap(err, "load aws config")
	}
	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := ssm.NewFromConfig(awsCfg).GetParameter(c, &ssm.GetParameterInput{
		Name:           aws.String(conf.AdminAPIKeySSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get ssm parameter %s", conf.AdminAPIKeySSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("ssm parameter %s has no value", conf.AdminAPIKeySSMParam)
	}
	return *out.Parameter.Value, nil
}

func notifySystemd() error {
	// NOTIFY_SOCKET is set when started under systemd with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
