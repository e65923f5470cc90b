// Package pathutil holds request path checks shared by the guards.
package pathutil

import "strings"

func isSep(r rune) bool { return r == '/' || r == '\\' }

// HasDotSegments reports whether any segment of p is "." or "..".
// Backslashes count as separators.
func HasDotSegments(p string) bool {
	for _, seg := range strings.FieldsFunc(p, isSep) {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
