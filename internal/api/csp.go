package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

const maxCSPReport = 64 << 10

// handleCSPReport accepts browser CSP violation reports. Parsing is best
// effort: malformed or oversized bodies are ignored and the answer is
// always 200.
func (api *API) handleCSPReport(w http.ResponseWriter, r *http.Request) error {
	defer respond.JSON(w, http.StatusOK, map[string]string{"status": "received"})

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCSPReport))
	if err != nil {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	report := body
	if inner, ok := body["csp-report"].(map[string]any); ok {
		report = inner
	}

	str := func(key, fallback string) string {
		if s, ok := report[key].(string); ok && s != "" {
			return s
		}
		return fallback
	}
	directive := str("violated-directive", "unknown")
	document := str("document-uri", "unknown")

	ctx := r.Context()
	ev := secevent.FromRequest(r, secevent.SuspiciousRequest, clientip.FromRequest(r),
		map[string]any{"reason": "csp_violation:" + directive})
	ev.Path = document
	api.events.Emit(ctx, ev)

	log.FromContext(ctx).Warn(ctx, "csp violation",
		"blocked_uri", str("blocked-uri", ""),
		"violated_directive", directive,
		"document_uri", document,
	)
	return nil
}
