package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// implemented by internal/xerrors
type (
	stackTracer interface{ StackPCs() []uintptr }
	pcCarrier   interface{ PC() uintptr }
	wrapper     interface{ IsXerrorsWrapper() }
)

// errorChain lists the distinct messages from err down to its root, then
// the members of a top level errors.Join.
func errorChain(err error) []string {
	var out []string
	add := func(msg string) {
		if len(out) == 0 || out[len(out)-1] != msg {
			out = append(out, msg)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// chainLinks maps each error in the chain to the source position that
// created it, up to max links. The first link is always present.
func chainLinks(err error, max int) []map[string]any {
	var links []map[string]any
	for e, depth := err, 0; e != nil && depth < max; e, depth = errors.Unwrap(e), depth+1 {
		link := map[string]any{"msg": e.Error()}
		fr, ok := errorFrame(e)
		if ok {
			link["func"], link["file"], link["line"] = fr.Function, fr.File, fr.Line
		}
		if ok || depth == 0 {
			links = append(links, link)
		}
	}
	return links
}

func errorFrame(e error) (runtime.Frame, bool) {
	switch v := e.(type) {
	case pcCarrier:
		return frameAt(v.PC())
	case stackTracer:
		return firstExtFrame(v.StackPCs())
	}
	return runtime.Frame{}, false
}

func frameAt(pc uintptr) (runtime.Frame, bool) {
	if pc == 0 {
		return runtime.Frame{}, false
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr, true
}

func firstExtFrame(pcs []uintptr) (runtime.Frame, bool) {
	if len(pcs) == 0 {
		return runtime.Frame{}, false
	}
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if !internalFrame(fr.Function) && !strings.Contains(fr.Function, "/internal/xerrors.") &&
			!strings.HasPrefix(fr.Function, "runtime.") {
			return fr, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// internalFrame reports frames that belong to logging itself.
func internalFrame(fn string) bool {
	return strings.HasPrefix(fn, "log/slog.") ||
		strings.HasPrefix(fn, "github.com/lmittmann/tint.") ||
		strings.Contains(fn, "/internal/log.")
}

// renderPCs writes func and file:line pairs, starting at the first frame
// outside logging and stopping at the runtime.
func renderPCs(pcs []uintptr) string {
	var b strings.Builder
	started := false
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if !more || strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		started = started || !internalFrame(fr.Function)
		if started {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
	}
	return b.String()
}

// classifyTypes returns the first type in the chain that is not a plain
// wrapper, and the type of the root cause.
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if surface == "" && !isWrapper(e) {
			surface = reflect.TypeOf(e).String()
		}
		root = fmt.Sprintf("%T", e)
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, root
}

func isWrapper(e error) bool {
	if _, ok := e.(wrapper); ok {
		return true
	}
	return fmt.Sprintf("%T", e) == "*fmt.wrapError"
}
