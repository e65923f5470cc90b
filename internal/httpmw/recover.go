package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

// Recover is the top-level boundary for unexpected failures. It installs b
// (and the base logger) in the request context for respond.Handler, and
// turns panics into the same generic 500. onPanic may be nil.
func Recover(logger log.Logger, b *respond.Boundary, onPanic func()) Middleware {
	if b == nil {
		b = &respond.Boundary{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := respond.WithBoundary(r.Context(), b)
			ctx = log.WithContext(ctx, logger)
			r = r.WithContext(ctx)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// net/http uses this to abort a response silently
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				var err error
				switch v := rec.(type) {
				case error:
					err = xerrors.WithStack(v)
				default:
					err = xerrors.Newf("panic: %v", v)
				}
				if onPanic != nil {
					onPanic()
				}
				b.Fail(w, r, fmt.Errorf("recovered panic: %w", err))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
