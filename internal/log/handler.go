package log

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// enrichHandler adds trace ids to every record and a stack to records at or
// above stackLevel.
type enrichHandler struct {
	next       slog.Handler
	stackLevel slog.Level
}

func (h enrichHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h enrichHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if r.Level >= h.stackLevel {
		r.AddAttrs(slog.String("stack", recordStack(r)))
	}
	return h.next.Handle(ctx, r)
}

func (h enrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return enrichHandler{next: h.next.WithAttrs(attrs), stackLevel: h.stackLevel}
}

func (h enrichHandler) WithGroup(name string) slog.Handler {
	return enrichHandler{next: h.next.WithGroup(name), stackLevel: h.stackLevel}
}

// recordStack prefers the stack captured on the logged error and falls back
// to the current goroutine's.
func recordStack(r slog.Record) string {
	var pcs []uintptr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != errKey {
			return true
		}
		if st, ok := a.Value.Any().(stackTracer); ok {
			pcs = st.StackPCs()
		}
		return false
	})
	if len(pcs) == 0 {
		buf := make([]uintptr, 64)
		pcs = buf[:runtime.Callers(3, buf)]
	}
	return strings.TrimSpace(renderPCs(pcs))
}

// secretKeys never reach the output, whoever logs them.
var secretKeys = map[string]struct{}{
	"admin_api_key": {},
	"api_key":       {},
	"x-api-key":     {},
	"authorization": {},
	"password":      {},
	"secret":        {},
	"token":         {},
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
