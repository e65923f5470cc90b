package respond

import (
	"context"
	"fmt"
	"net/http"

	"github.com/keithlinneman/portfolio-api/internal/log"
)

// Boundary is the top-level handler for unexpected failures.
type Boundary struct {
	// Debug adds the error message and type to the response body.
	// Config validation keeps it off in production.
	Debug bool
	// OnFailure is called once per failure, e.g. for a 5xx counter.
	OnFailure func()
}

type boundaryKey struct{}

// WithBoundary stores b in ctx.
func WithBoundary(ctx context.Context, b *Boundary) context.Context {
	return context.WithValue(ctx, boundaryKey{}, b)
}

// BoundaryFromContext returns the request's Boundary or a production default.
func BoundaryFromContext(ctx context.Context) *Boundary {
	if b, ok := ctx.Value(boundaryKey{}).(*Boundary); ok && b != nil {
		return b
	}
	return &Boundary{}
}

type internalBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Fail logs err with full detail and writes a generic 500.
func (b *Boundary) Fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	log.FromContext(ctx).Error(ctx, err, "unhandled request error",
		"http.request.method", r.Method,
		"url.path", r.URL.Path,
	)
	if b.OnFailure != nil {
		b.OnFailure()
	}

	body := internalBody{Detail: "Internal server error"}
	if b.Debug && err != nil {
		body.Error = err.Error()
		body.Type = fmt.Sprintf("%T", err)
	}
	JSON(w, http.StatusInternalServerError, body)
}
