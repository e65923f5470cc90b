package xerrors

import (
	"errors"
	"io/fs"
	"runtime"
	"strings"
	"testing"
)

func hasFrame(pcs []uintptr, suffix string) bool {
	for _, fn := range frames(pcs) {
		if strings.HasSuffix(fn, suffix) {
			return true
		}
	}
	return false
}

func frames(pcs []uintptr) []string {
	var out []string
	it := runtime.CallersFrames(pcs)
	for {
		fr, more := it.Next()
		out = append(out, fr.Function)
		if !more {
			return out
		}
	}
}

func TestNew(t *testing.T) {
	err := New("store closed")
	if err.Error() != "store closed" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !HasStack(err) {
		t.Fatal("New should capture a stack")
	}

	var s *stacked
	if !errors.As(err, &s) {
		t.Fatal("not a *stacked")
	}
	if !hasFrame(s.StackPCs(), ".TestNew") {
		t.Errorf("stack %v does not contain the caller", frames(s.StackPCs()))
	}
}

func TestNewf(t *testing.T) {
	err := Newf("invalid port %d", 70000)
	if err.Error() != "invalid port 70000" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !HasStack(err) {
		t.Fatal("Newf should capture a stack")
	}
}

func TestNilStaysNil(t *testing.T) {
	if WithStack(nil) != nil || EnsureTrace(nil) != nil || Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("nil input must produce nil")
	}
}

func TestWithStack(t *testing.T) {
	base := fs.ErrNotExist
	err := WithStack(base)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("WithStack must unwrap to the original")
	}
	if err.Error() != base.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
	if !HasStack(err) {
		t.Fatal("missing stack")
	}
}

func TestEnsureTrace(t *testing.T) {
	plain := errors.New("plain")
	err := EnsureTrace(plain)
	if !HasStack(err) {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}
	if again := EnsureTrace(err); again != err {
		t.Error("EnsureTrace should not stack twice")
	}

	// a stack deeper in the chain counts
	wrappedErr := Wrap(New("root"), "outer")
	if EnsureTrace(wrappedErr) != wrappedErr {
		t.Error("EnsureTrace should keep an error whose cause has a stack")
	}
}

func TestWrap(t *testing.T) {
	root := errors.New("connection refused")
	err := Wrapf(Wrap(root, "ping"), "open %s", "portfolio.db")

	if err.Error() != "open portfolio.db: ping: connection refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, root) {
		t.Fatal("chain does not reach root")
	}
	if HasStack(err) {
		t.Error("Wrap should not capture a full stack")
	}

	var w *wrapped
	if !errors.As(err, &w) {
		t.Fatal("not a *wrapped")
	}
	if w.PC() == 0 || !hasFrame([]uintptr{w.PC()}, ".TestWrap") {
		t.Errorf("wrap frame %v does not point at the caller", frames([]uintptr{w.PC()}))
	}
}

func TestWrappersAreMarked(t *testing.T) {
	type marker interface{ IsXerrorsWrapper() }
	for _, err := range []error{New("a"), Wrap(errors.New("b"), "c")} {
		if _, ok := err.(marker); !ok {
			t.Errorf("%T is not marked as an xerrors wrapper", err)
		}
	}
}
