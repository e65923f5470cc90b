package httpmw

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// eventSink captures security events for assertions.
type eventSink struct {
	mu   sync.Mutex
	recs []secevent.Record
}

func (s *eventSink) Write(_ context.Context, r secevent.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
}

func (s *eventSink) records() []secevent.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]secevent.Record(nil), s.recs...)
}

func newEvents() (*secevent.Emitter, *eventSink) {
	s := &eventSink{}
	return secevent.New(s), s
}

type capturedLog struct {
	msg    string
	err    error
	fields []any
}

// flatLogger captures With(), Info() and Error() calls. With returns the
// same logger so every call lands in one place.
type flatLogger struct {
	mu     sync.Mutex
	infos  []capturedLog
	errors []capturedLog
	withs  [][]any
}

func (l *flatLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *flatLogger) Info(_ context.Context, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, capturedLog{msg: msg, fields: kv})
}

func (l *flatLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, capturedLog{msg: msg, err: err, fields: kv})
}

func (l *flatLogger) Debug(context.Context, string, ...any) {}
func (l *flatLogger) Warn(context.Context, string, ...any)  {}
func (l *flatLogger) Sync() error                           { return nil }

func fieldValue(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func errorsAs(err error, target any) bool { return errors.As(err, target) }
