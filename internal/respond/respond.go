// Package respond writes the minimal {"detail": "..."} JSON bodies used by
// every denial path, and separates expected handler outcomes from unexpected
// failures.
//
// Route handlers return an error. A *Error is an expected outcome and is
// written as-is. Anything else is an unexpected failure and goes to the
// request's Boundary, the single place that logs internal detail and answers
// with a generic 500.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

const contentTypeJSON = "application/json"

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"detail":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

type detailBody struct {
	Detail string `json:"detail"`
}

// Detail writes {"detail": detail}.
func Detail(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, detailBody{Detail: detail})
}

// NotFound is the single not-found response, shared by the router and the
// honeypot routes so the two cannot be told apart.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	Detail(w, http.StatusNotFound, "Not found")
}

// TooManyRequests writes the generic 429 with Retry-After in seconds.
func TooManyRequests(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	Detail(w, http.StatusTooManyRequests, "Too many requests")
}

// Error is an expected handler outcome with a client-safe detail.
type Error struct {
	Status int
	Detail string
	// Err is kept for server-side logs only.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Detail, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(status int, detail string) *Error {
	return &Error{Status: status, Detail: detail}
}

func BadRequest(detail string) *Error { return NewError(http.StatusBadRequest, detail) }

func ErrNotFound() *Error { return NewError(http.StatusNotFound, "Not found") }

// HandlerFunc is a route handler that reports failures by return value.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handler adapts fn into an http.Handler.
func Handler(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		var re *Error
		if errors.As(err, &re) {
			Detail(w, re.Status, re.Detail)
			return
		}
		BoundaryFromContext(r.Context()).Fail(w, r, err)
	})
}
