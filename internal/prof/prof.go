// Package prof pushes continuous profiles to Pyroscope.
package prof

import (
	"context"
	"maps"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	TenantID      string
	Version       string
	Environment   string
	Tags          map[string]string
	// Contention enables mutex and block profiles along with their
	// runtime sampling rates.
	Contention           bool
	ProfileMutexFraction int
	BlockProfileRate     int
}

var baseProfiles = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

var contentionProfiles = []pyroscope.ProfileType{
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// tags merges the caller's tags with version and environment.
func (o Options) tags() map[string]string {
	out := make(map[string]string, len(o.Tags)+2)
	if o.Version != "" {
		out["version"] = o.Version
	}
	if o.Environment != "" {
		out["environment"] = o.Environment
	}
	maps.Copy(out, o.Tags)
	return out
}

func (o Options) profileTypes() []pyroscope.ProfileType {
	types := append([]pyroscope.ProfileType(nil), baseProfiles...)
	if o.Contention {
		types = append(types, contentionProfiles...)
	}
	return types
}

// Start begins pushing profiles. The returned stop func is always non-nil
// and safe to call more than once.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	noop := func() {}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return noop, nil
	}

	if opts.ServerAddress == "" {
		err := xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope options")
		return noop, err
	}

	if opts.Contention {
		if opts.ProfileMutexFraction > 0 {
			runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
		}
		if opts.BlockProfileRate > 0 {
			runtime.SetBlockProfileRate(opts.BlockProfileRate)
		}
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.tags(),
		ProfileTypes:    opts.profileTypes(),
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		return noop, err
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
		"contention", opts.Contention,
	)

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		_ = profiler.Stop()
		L.Info(context.Background(), "pyroscope stopped", "app_name", opts.AppName)
	}, nil
}
