// Package lockout temporarily blocks write access for clients that keep
// failing authentication.
//
// Per client the guard moves Clear -> Accumulating -> Locked -> Clear.
// Failures are reported by the authentication gate through RecordFailure and
// kept for a fixed look-back window. When a protected write request arrives
// and the client has reached the threshold, a block is created and the
// request is denied. While the block is live every protected write request is
// denied without looking at failures. When it lapses the block and the
// failure history are both dropped, so the next request is evaluated fresh.
//
// This is independent of rate limiting: it counts authentication failures,
// not request volume, and its block is a hard deny rather than a sliding cap.
// State is per process, like ratelimit.
package lockout

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultLookback  = 15 * time.Minute
	DefaultBlockFor  = 900 * time.Second
)

// DefaultProtectedPaths are the path prefixes whose writes are guarded.
var DefaultProtectedPaths = []string{"/api/projects", "/api/contact"}

// State is a client's position in the lockout state machine.
type State int

const (
	Clear State = iota
	Accumulating
	Locked
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Accumulating:
		return "accumulating"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of evaluating a protected request.
type Verdict struct {
	Denied bool
	// NewlyBlocked is set on the request that created the block.
	NewlyBlocked bool
	// Failures is the count that triggered a new block.
	Failures int
	Until    time.Time
}

// Guard holds the failure tracker and block registry.
type Guard struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	blocked  map[string]time.Time

	threshold  int
	lookback   time.Duration
	blockFor   time.Duration
	prefixes   []string
	sweepEvery time.Duration
	now        func() time.Time
}

type Option func(*Guard)

// WithThreshold sets how many failures inside the look-back window lock a client.
func WithThreshold(n int) Option {
	return func(g *Guard) { g.threshold = n }
}

// WithBlockDuration sets how long a block lasts.
func WithBlockDuration(d time.Duration) Option {
	return func(g *Guard) { g.blockFor = d }
}

// WithLookback sets the failure look-back window.
func WithLookback(d time.Duration) Option {
	return func(g *Guard) { g.lookback = d }
}

// WithProtectedPaths replaces the guarded path prefixes.
func WithProtectedPaths(prefixes ...string) Option {
	return func(g *Guard) { g.prefixes = append([]string(nil), prefixes...) }
}

func WithSweepInterval(d time.Duration) Option {
	return func(g *Guard) { g.sweepEvery = d }
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates a Guard and starts its sweep goroutine, stopped by ctx.
func New(ctx context.Context, opts ...Option) *Guard {
	g := &Guard{
		failures:  make(map[string][]time.Time),
		blocked:   make(map[string]time.Time),
		threshold: DefaultThreshold,
		lookback:  DefaultLookback,
		blockFor:  DefaultBlockFor,
		prefixes:  DefaultProtectedPaths,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.threshold < 1 {
		g.threshold = 1
	}
	if g.sweepEvery <= 0 {
		g.sweepEvery = time.Minute
	}
	go g.sweepLoop(ctx)
	return g
}

// BlockSeconds is the Retry-After value for a locked client.
func (g *Guard) BlockSeconds() int {
	return int(math.Ceil(g.blockFor.Seconds()))
}

// Threshold returns the configured failure threshold.
func (g *Guard) Threshold() int { return g.threshold }

// RecordFailure notes one failed authentication for id at the current time.
func (g *Guard) RecordFailure(id string) {
	g.RecordFailureAt(id, g.now())
}

func (g *Guard) RecordFailureAt(id string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[id] = append(pruneBefore(g.failures[id], now, g.lookback), now)
}

// Evaluate runs the state machine for one protected request from id.
func (g *Guard) Evaluate(id string, now time.Time) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if until, ok := g.blocked[id]; ok {
		if now.Before(until) {
			return Verdict{Denied: true, Until: until}
		}
		// lapsed: back to Clear
		delete(g.blocked, id)
		delete(g.failures, id)
		return Verdict{}
	}

	recent := pruneBefore(g.failures[id], now, g.lookback)
	if len(recent) == 0 {
		delete(g.failures, id)
		return Verdict{}
	}
	g.failures[id] = recent

	if len(recent) >= g.threshold {
		until := now.Add(g.blockFor)
		g.blocked[id] = until
		return Verdict{Denied: true, NewlyBlocked: true, Failures: len(recent), Until: until}
	}
	return Verdict{}
}

// StateOf reports id's current state without changing it.
func (g *Guard) StateOf(id string, now time.Time) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until, ok := g.blocked[id]; ok && now.Before(until) {
		return Locked
	}
	if _, ok := g.blocked[id]; ok {
		// lapsed block, history is dropped on next evaluation
		return Clear
	}
	if countWithin(g.failures[id], now, g.lookback) > 0 {
		return Accumulating
	}
	return Clear
}

// Protects reports whether method+path is a guarded write.
func (g *Guard) Protects(method, path string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
	default:
		return false
	}
	for _, p := range g.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Tracked returns the number of identifiers with failures and active blocks.
func (g *Guard) Tracked() (failing, blocked int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.failures), len(g.blocked)
}

// Sweep drops lapsed blocks and failure histories with nothing left in the
// look-back window.
func (g *Guard) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, until := range g.blocked {
		if !now.Before(until) {
			delete(g.blocked, id)
			delete(g.failures, id)
		}
	}
	for id, ts := range g.failures {
		if _, locked := g.blocked[id]; locked {
			continue
		}
		if recent := pruneBefore(ts, now, g.lookback); len(recent) == 0 {
			delete(g.failures, id)
		} else {
			g.failures[id] = recent
		}
	}
}

func (g *Guard) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(g.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep(g.now())
		}
	}
}

// pruneBefore keeps timestamps strictly within window of now.
func pruneBefore(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

func countWithin(ts []time.Time, now time.Time, window time.Duration) int {
	n := 0
	for _, t := range ts {
		if now.Sub(t) < window {
			n++
		}
	}
	return n
}
