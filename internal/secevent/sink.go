package secevent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/portfolio-api/internal/log"
)

// LogSink writes each record as one structured log line.
type LogSink struct {
	L log.Logger
}

func (s LogSink) Write(ctx context.Context, rec Record) {
	if s.L == nil {
		return
	}
	kv := []any{
		"security_event", string(rec.Kind),
		"event_id", rec.ID,
		"event_time", rec.Time.Format(time.RFC3339Nano),
		"client.address", rec.ClientIP,
		"url.path", rec.Path,
	}
	if rec.Method != "" {
		kv = append(kv, "http.request.method", rec.Method)
	}
	if rec.UserAgent != "" {
		kv = append(kv, "user_agent.original", rec.UserAgent)
	}
	if len(rec.Details) > 0 {
		kv = append(kv, "details", rec.Details)
	}
	if rec.Level <= slog.LevelInfo {
		s.L.Info(ctx, rec.Message, kv...)
		return
	}
	s.L.Warn(ctx, rec.Message, kv...)
}

// AsyncSink forwards records to next from a single background goroutine.
// Write never blocks: when the buffer is full the record is dropped and
// counted.
type AsyncSink struct {
	next    Sink
	ch      chan asyncItem
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
	dropped atomic.Uint64

	onDrop    func()
	dropLog   rate.Sometimes
	dropLogFn func(total uint64)
}

type asyncItem struct {
	ctx context.Context
	rec Record
}

type AsyncOption func(*AsyncSink)

// WithOnDrop is called for every dropped record, used for a prometheus counter.
func WithOnDrop(fn func()) AsyncOption {
	return func(a *AsyncSink) { a.onDrop = fn }
}

// WithDropReport is called with the running drop total at most once per
// interval while records are being dropped.
func WithDropReport(interval time.Duration, fn func(total uint64)) AsyncOption {
	return func(a *AsyncSink) {
		a.dropLog = rate.Sometimes{Interval: interval}
		a.dropLogFn = fn
	}
}

// NewAsyncSink starts the forwarding goroutine. Call Close to flush and stop it.
func NewAsyncSink(next Sink, buffer int, opts ...AsyncOption) *AsyncSink {
	if buffer <= 0 {
		buffer = 1024
	}
	a := &AsyncSink{
		next:    next,
		ch:      make(chan asyncItem, buffer),
		done:    make(chan struct{}),
		dropLog: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	go a.run()
	return a
}

func (a *AsyncSink) Write(ctx context.Context, rec Record) {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		a.drop()
		return
	}
	// detach from request cancellation but keep trace correlation values
	select {
	case a.ch <- asyncItem{ctx: context.WithoutCancel(ctx), rec: rec}:
	default:
		a.drop()
	}
}

func (a *AsyncSink) drop() {
	total := a.dropped.Add(1)
	if a.onDrop != nil {
		a.onDrop()
	}
	if a.dropLogFn != nil {
		a.dropLog.Do(func() { a.dropLogFn(total) })
	}
}

// Dropped returns the number of records dropped so far.
func (a *AsyncSink) Dropped() uint64 { return a.dropped.Load() }

func (a *AsyncSink) run() {
	defer close(a.done)
	for it := range a.ch {
		a.forward(it)
	}
}

func (a *AsyncSink) forward(it asyncItem) {
	defer func() { _ = recover() }()
	a.next.Write(it.ctx, it.rec)
}

// Close stops accepting records and waits until buffered ones are written
// or ctx expires.
func (a *AsyncSink) Close(ctx context.Context) error {
	a.closeMu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.closeMu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
