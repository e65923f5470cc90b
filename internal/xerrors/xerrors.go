// Package xerrors attaches call-site information to errors so the logger can
// report where a failure was created or wrapped.
//
// New, Newf, WithStack and EnsureTrace capture a full stack. Wrap and Wrapf
// record a single frame, since the stack is usually captured further down
// the chain already. Everything unwraps with the standard errors package.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

// stacked carries the stack at the point it was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// wrapped adds a message and the wrapping frame.
type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrapped) Error() string     { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error     { return w.err }
func (w *wrapped) PC() uintptr       { return w.pc }
func (w *wrapped) IsXerrorsWrapper() {}

// callers skips runtime.Callers, callers itself and skip more frames.
func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// stack wraps err with the stack of the caller skip frames above stack.
func stack(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: callers(skip + 1)}
}

// HasStack reports whether any error in err's chain carries a stack.
func HasStack(err error) bool {
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	return errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0
}

func New(msg string) error             { return stack(errors.New(msg), 1) }
func Newf(f string, args ...any) error { return stack(fmt.Errorf(f, args...), 1) }

// WithStack records the caller's stack on err. nil stays nil.
func WithStack(err error) error { return stack(err, 1) }

// EnsureTrace is WithStack unless err already carries a stack.
func EnsureTrace(err error) error {
	if err == nil || HasStack(err) {
		return err
	}
	return stack(err, 1)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}
