// Package version exposes build metadata stamped at link time with
// -ldflags "-X github.com/keithlinneman/portfolio-api/internal/version.Version=...".
package version

import (
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/portfolio-api/internal/respond"
)

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Get merges the link-time values with what the toolchain recorded in the
// binary. Link-time values win.
func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.BuildDate == "" {
				out.BuildDate = s.Value
			}
			if out.CommitDate == "" {
				out.CommitDate = s.Value
			}
		case "vcs.modified":
			dirty := s.Value == "true"
			if s.Value == "true" || s.Value == "false" {
				out.VCSDirty = &dirty
			}
		}
	}
	return out
}

// Short is the version with an abbreviated commit, e.g. "1.4.0+3f9a2c1".
// A dirty tree gets a "-dirty" suffix.
func (i Info) Short() string {
	s := i.Version
	if c := i.Commit; c != "" && c != "none" {
		if len(c) > 7 {
			c = c[:7]
		}
		s += "+" + c
	}
	if i.VCSDirty != nil && *i.VCSDirty {
		s += "-dirty"
	}
	return s
}

// Handler serves Get as JSON.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		respond.JSON(w, http.StatusOK, Get())
	})
}
