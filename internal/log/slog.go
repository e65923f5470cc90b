package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/lmittmann/tint"
)

const (
	errKey               = "err"
	defaultMaxErrorLinks = 8
)

type slogLogger struct {
	h     slog.Handler
	attrs []slog.Attr
	links int // 0 disables error_links
}

func newSlog(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.StacktraceLevel == 0 {
		opts.StacktraceLevel = slog.LevelError
	}

	var base slog.Handler
	if opts.JsonFormat {
		base = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       opts.Level,
			AddSource:   true,
			ReplaceAttr: redactSecrets,
		})
	} else {
		base = tint.NewHandler(w, &tint.Options{
			Level:       opts.Level,
			AddSource:   true,
			ReplaceAttr: redactSecrets,
			TimeFormat:  time.StampMilli,
			NoColor:     !opts.Color,
		})
	}

	l := &slogLogger{
		h:     enrichHandler{next: base, stackLevel: opts.StacktraceLevel},
		attrs: kvAttrs(nil, "app", opts.App),
	}
	if opts.Version != "" {
		l.attrs = kvAttrs(l.attrs, "version", opts.Version)
	}
	if opts.Environment != "" {
		l.attrs = kvAttrs(l.attrs, "environment", opts.Environment)
	}
	if opts.IncludeErrorLinks {
		l.links = opts.MaxErrorLinks
		if l.links <= 0 {
			l.links = defaultMaxErrorLinks
		}
	}
	return l, nil
}

// kvAttrs appends alternating key/value pairs to dst. Non-string keys and a
// trailing odd value are dropped.
func kvAttrs(dst []slog.Attr, kv ...any) []slog.Attr {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			dst = append(dst, slog.Any(k, kv[i+1]))
		}
	}
	return dst
}

func (s *slogLogger) With(kv ...any) Logger {
	// fresh slice so siblings never share a backing array
	attrs := kvAttrs(append(make([]slog.Attr, 0, len(s.attrs)+len(kv)/2), s.attrs...), kv...)
	return &slogLogger{h: s.h, attrs: attrs, links: s.links}
}

func (s *slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelDebug, msg, kv)
}

func (s *slogLogger) Info(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelInfo, msg, kv)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelWarn, msg, kv)
}

func (s *slogLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		surface, root := classifyTypes(err)
		kv = append(kv, errKey, err, "error_type", surface, "cause_type", root)
		if chain := errorChain(err); len(chain) > 0 {
			kv = append(kv, "error_chain", chain)
		}
		if s.links > 0 {
			kv = append(kv, "error_links", chainLinks(err, s.links))
		}
	}
	s.log(ctx, slog.LevelError, msg, kv)
}

func (s *slogLogger) Sync() error { return nil }

// log must be called directly from the exported level methods so the
// source attribute points at their caller.
func (s *slogLogger) log(ctx context.Context, lvl slog.Level, msg string, kv []any) {
	if !s.h.Enabled(ctx, lvl) {
		return
	}
	var pcs [1]uintptr
	// runtime.Callers, log, Info/Warn/...
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	r.AddAttrs(s.attrs...)
	r.AddAttrs(kvAttrs(nil, kv...)...)
	_ = s.h.Handle(ctx, r)
}
