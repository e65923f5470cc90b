package health

import (
	"net/http"

	"github.com/keithlinneman/portfolio-api/internal/respond"
)

type status struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func handler(p Probe, okStatus string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable, status{Status: "unavailable", Reason: err.Error()})
				return
			}
		}
		respond.JSON(w, http.StatusOK, status{Status: okStatus})
	}
}

// HealthzHandler answers 200 {"status":"ok"} while p passes, 503 with the
// failure reason otherwise. A nil probe is always healthy.
func HealthzHandler(p Probe) http.HandlerFunc { return handler(p, "ok") }

// ReadyzHandler is HealthzHandler reporting "ready".
func ReadyzHandler(p Probe) http.HandlerFunc { return handler(p, "ready") }
