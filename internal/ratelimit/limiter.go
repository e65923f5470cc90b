package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// window is one client's accepted-request timestamps, oldest first.
type window struct {
	hits []time.Time
}

// prune drops hits that are not strictly within period of now.
func (w *window) prune(now time.Time, period time.Duration) {
	i := 0
	for i < len(w.hits) && now.Sub(w.hits[i]) >= period {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is when the oldest counted request leaves the window.
	Reset time.Time
}

// Limiter holds per-client sliding windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window

	name       string
	capacity   int
	period     time.Duration
	maxClients int
	sweepEvery time.Duration
	now        func() time.Time

	// saturated is true between the first eviction at maxClients and the
	// next sweep that leaves the map below it, so OnCapacity fires once per
	// episode
	saturated bool

	events  *secevent.Emitter
	scope   func(*http.Request) bool
	headers bool

	// OnDenied is called on every denied request, used for prometheus counters
	OnDenied func(id string)

	// OnCapacity is called once per episode of evicting active clients to
	// stay under the tracked-client cap
	OnCapacity func()
}

type Option func(*Limiter)

// WithWindow allows capacity requests per client in any period-long window.
func WithWindow(capacity int, period time.Duration) Option {
	return func(l *Limiter) {
		l.capacity = capacity
		l.period = period
	}
}

// WithName labels the limiter in events and metrics.
func WithName(name string) Option {
	return func(l *Limiter) { l.name = name }
}

// WithMaxClients caps the number of tracked identifiers. At the cap the least
// recently active client is forgotten to admit a new one. 0 disables the cap.
func WithMaxClients(n int) Option {
	return func(l *Limiter) { l.maxClients = n }
}

// WithSweepInterval controls how often empty windows are evicted.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepEvery = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithEvents sets the emitter used for RATE_LIMIT_TRIGGERED events.
func WithEvents(e *secevent.Emitter) Option {
	return func(l *Limiter) { l.events = e }
}

// WithScope restricts the middleware to requests matching fn. Others pass
// through without being counted.
func WithScope(fn func(*http.Request) bool) Option {
	return func(l *Limiter) { l.scope = fn }
}

// WithHeaders controls the X-RateLimit-* headers on every response that
// passes through the middleware.
func WithHeaders(on bool) Option {
	return func(l *Limiter) { l.headers = on }
}

func WithOnDenied(fn func(id string)) Option {
	return func(l *Limiter) { l.OnDenied = fn }
}

func WithOnCapacity(fn func()) Option {
	return func(l *Limiter) { l.OnCapacity = fn }
}

// MethodPath matches one method on one path, ignoring a trailing slash.
func MethodPath(method, path string) func(*http.Request) bool {
	path = strings.TrimSuffix(path, "/")
	return func(r *http.Request) bool {
		return r.Method == method && strings.TrimSuffix(r.URL.Path, "/") == path
	}
}

// New creates a Limiter and starts its sweep goroutine, which stops when ctx
// is cancelled.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		clients:  make(map[string]*window),
		name:     "global",
		capacity: 100,
		period:   time.Minute,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.capacity < 1 {
		l.capacity = 1
	}
	if l.period <= 0 {
		l.period = time.Minute
	}
	if l.sweepEvery <= 0 {
		l.sweepEvery = l.period
	}
	go l.sweepLoop(ctx)
	return l
}

func (l *Limiter) Name() string { return l.name }

// RetryAfterSeconds is the Retry-After value sent on denial: the full period.
func (l *Limiter) RetryAfterSeconds() int {
	return int(math.Ceil(l.period.Seconds()))
}

// CheckAndRecord prunes id's window, then either denies or records now.
// The whole read-modify-write runs under one lock, so two concurrent
// requests can never both take the last slot.
func (l *Limiter) CheckAndRecord(id string, now time.Time) Decision {
	l.mu.Lock()
	d, atCapacity := l.checkAndRecordLocked(id, now)
	l.mu.Unlock()

	if atCapacity && l.OnCapacity != nil {
		l.OnCapacity()
	}
	return d
}

func (l *Limiter) checkAndRecordLocked(id string, now time.Time) (Decision, bool) {
	var atCapacity bool
	w, ok := l.clients[id]
	if !ok {
		if l.maxClients > 0 && len(l.clients) >= l.maxClients {
			atCapacity = l.makeRoomLocked(now)
		}
		w = &window{}
		l.clients[id] = w
	}

	w.prune(now, l.period)

	if len(w.hits) >= l.capacity {
		return Decision{
			Limit:     l.capacity,
			Remaining: 0,
			Reset:     w.hits[0].Add(l.period),
		}, atCapacity
	}

	w.hits = append(w.hits, now)
	return Decision{
		Allowed:   true,
		Limit:     l.capacity,
		Remaining: l.capacity - len(w.hits),
		Reset:     w.hits[0].Add(l.period),
	}, atCapacity
}

// makeRoomLocked frees one slot for a new identifier. Idle windows go first;
// if none are idle the client whose newest hit is oldest is evicted. It
// reports whether this starts a saturation episode.
func (l *Limiter) makeRoomLocked(now time.Time) bool {
	l.sweepLocked(now)
	if len(l.clients) < l.maxClients {
		return false
	}

	var (
		victim string
		oldest time.Time
		found  bool
	)
	// sweepLocked left only windows with at least one hit
	for id, w := range l.clients {
		last := w.hits[len(w.hits)-1]
		if !found || last.Before(oldest) {
			victim, oldest, found = id, last, true
		}
	}
	delete(l.clients, victim)

	first := !l.saturated
	l.saturated = true
	return first
}

// Tracked returns the number of client identifiers currently held.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Sweep evicts clients with no requests left in the window.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

func (l *Limiter) sweepLocked(now time.Time) int {
	evicted := 0
	for id, w := range l.clients {
		w.prune(now, l.period)
		if len(w.hits) == 0 {
			delete(l.clients, id)
			evicted++
		}
	}
	if l.maxClients <= 0 || len(l.clients) < l.maxClients {
		l.saturated = false
	}
	return evicted
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(l.now())
		}
	}
}
