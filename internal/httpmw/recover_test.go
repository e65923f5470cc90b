package httpmw

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/portfolio-api/internal/respond"
)

func TestRecover_PanicBecomesGeneric500(t *testing.T) {
	logger := &flatLogger{}
	panics := 0
	h := Recover(logger, &respond.Boundary{}, func() { panics++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("database password is hunter2")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Fatalf("panic value leaked: %s", rec.Body.String())
	}
	if rec.Body.String() != `{"detail":"Internal server error"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if panics != 1 {
		t.Fatalf("onPanic called %d times", panics)
	}
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0].err.Error(), "hunter2") {
		t.Fatalf("panic not logged with detail: %+v", logger.errors)
	}
}

func TestRecover_DebugEchoesError(t *testing.T) {
	h := Recover(&flatLogger{}, &respond.Boundary{Debug: true}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["detail"] != "Internal server error" || !strings.Contains(body["error"], "boom") || body["type"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestRecover_InstallsBoundaryForHandlers(t *testing.T) {
	failures := 0
	b := &respond.Boundary{OnFailure: func() { failures++ }}
	inner := respond.Handler(func(http.ResponseWriter, *http.Request) error {
		return errors.New("disk on fire")
	})

	rec := httptest.NewRecorder()
	Recover(&flatLogger{}, b, nil)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError || failures != 1 {
		t.Fatalf("status = %d, failures = %d", rec.Code, failures)
	}
}

func TestRecover_ErrAbortHandlerRepanics(t *testing.T) {
	h := Recover(&flatLogger{}, nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
