package pathutil

import (
	"strings"
	"testing"
)

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/projects", false},
		{"/api/./projects", true},
		{"/api/projects/..", true},
		{"..", true},
		{"/...", false},
		{"/.well-known/security.txt", false},
		{`\..\windows`, true},
		{`/api\.\x`, true},
		{"//", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := HasDotSegments(tt.path); got != tt.want {
				t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func FuzzHasDotSegments(f *testing.F) {
	for _, s := range []string{"foo/./bar", "foo/../bar", `a\..\b`, ".", "...", "foo/bar"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, p string) {
		want := false
		for _, seg := range strings.Split(strings.ReplaceAll(p, `\`, "/"), "/") {
			if seg == "." || seg == ".." {
				want = true
			}
		}
		if got := HasDotSegments(p); got != want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", p, got, want)
		}
	})
}
