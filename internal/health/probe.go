package health

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

// Probe reports nil when healthy and the reason otherwise.
type Probe interface{ Check(context.Context) error }

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

var errNoProbes = errors.New("no healthy probes")

// Fixed returns a probe with a constant answer. An empty reason reads
// "unhealthy".
func Fixed(ok bool, reason string) CheckFunc {
	var err error
	if !ok {
		if reason == "" {
			reason = "unhealthy"
		}
		err = errors.New(reason)
	}
	return func(context.Context) error { return err }
}

// All fails with the first failing probe. nil probes are skipped.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes as soon as one probe passes. When none do it returns every
// failure joined.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return errNoProbes
		}
		return errors.Join(errs...)
	}
}

// Pinger is implemented by *store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping probes a dependency, bounding each check by timeout when positive.
func Ping(name string, p Pinger, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return xerrors.Wrapf(p.Ping(ctx), "%s unavailable", name)
	}
}

// ShutdownGate fails readiness once draining begins. The zero value is open.
type ShutdownGate struct {
	reason atomic.Pointer[string] // nil while serving
}

// Set closes the gate. An empty reason reads "draining".
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

func (g *ShutdownGate) Draining() bool { return g.reason.Load() != nil }

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return errors.New(*r)
		}
		return nil
	}
}
