package secevent

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sink receives sanitized records. Implementations must not block the caller
// for long; wrap slow sinks in an AsyncSink.
type Sink interface {
	Write(ctx context.Context, rec Record)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, rec Record)

func (f SinkFunc) Write(ctx context.Context, rec Record) { f(ctx, rec) }

// Emitter sanitizes events and writes them to a Sink.
// A nil *Emitter is valid and discards everything.
type Emitter struct {
	sink    Sink
	now     func() time.Time
	newID   func() string
	onEmit  func(Kind)
	onPanic func(any)
}

type Option func(*Emitter)

// WithObserver registers a callback invoked once per emitted event, used for
// per-kind prometheus counters.
func WithObserver(fn func(Kind)) Option {
	return func(e *Emitter) { e.onEmit = fn }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// WithPanicHandler is called with the recovered value if a sink or observer
// panics. The panic is swallowed either way.
func WithPanicHandler(fn func(any)) Option {
	return func(e *Emitter) { e.onPanic = fn }
}

func New(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{
		sink:  sink,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Emit writes one record for ev. It never panics.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil || e.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil && e.onPanic != nil {
			func() {
				defer func() { _ = recover() }()
				e.onPanic(rec)
			}()
		}
	}()

	details := SanitizeDetails(ev.Details)
	rec := Record{
		ID:        e.newID(),
		Time:      e.now().UTC(),
		Kind:      ev.Kind,
		Level:     ev.Kind.level(),
		Message:   ev.Kind.message(details),
		ClientIP:  MaskIP(ev.ClientIP),
		Path:      ev.Path,
		Method:    ev.Method,
		UserAgent: TruncateUserAgent(ev.UserAgent),
		Details:   details,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// counted before the write so a failing sink still shows up in metrics
	if e.onEmit != nil {
		e.onEmit(ev.Kind)
	}
	e.sink.Write(ctx, rec)
}

// FromRequest fills the request-derived fields of an Event.
func FromRequest(r *http.Request, kind Kind, clientIP string, details map[string]any) Event {
	return Event{
		Kind:      kind,
		ClientIP:  clientIP,
		Path:      r.URL.Path,
		Method:    r.Method,
		UserAgent: r.UserAgent(),
		Details:   details,
	}
}
