package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

func TestTrustedHost(t *testing.T) {
	em, sink := newEvents()
	h := Chain(okHandler, TrustedHost([]string{"api.example.com", "*.example.org"}, em))

	tests := []struct {
		host string
		want int
	}{
		{"api.example.com", http.StatusOK},
		{"API.example.com:8443", http.StatusOK},
		{"www.example.org", http.StatusOK},
		{"example.org", http.StatusBadRequest},
		{"evil.com", http.StatusBadRequest},
		{"api.example.com.evil.com", http.StatusBadRequest},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Host = tt.host
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != tt.want {
			t.Errorf("host %q: status %d, want %d", tt.host, rec.Code, tt.want)
		}
	}
	if n := len(sink.records()); n != 3 {
		t.Fatalf("events = %d, want 3", n)
	}
	if rec := sink.records()[0]; rec.Kind != secevent.AccessDenied || rec.Details["reason"] != "invalid_host" {
		t.Fatalf("event = %+v", rec)
	}
}

func TestTrustedHost_WildcardDisables(t *testing.T) {
	if TrustedHost([]string{"*"}, nil) != nil {
		t.Fatal("* should disable the stage")
	}
	if TrustedHost(nil, nil) != nil {
		t.Fatal("empty list should disable the stage")
	}
}

func TestCORS_NoCredentials(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("credentials must never be allowed")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Ratelimit-Remaining") &&
		!strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining") {
		t.Fatalf("Expose-Headers = %q", rec.Header().Get("Access-Control-Expose-Headers"))
	}

	r = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must not be allowed")
	}
}

func TestCORS_EmptyOriginsAllowsNone(t *testing.T) {
	h := CORS(nil)(okHandler)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("empty origin list must not fall back to *")
	}
}

func TestRequestSize(t *testing.T) {
	em, sink := newEvents()
	h := RequestSize(10, em)(okHandler)

	r := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(strings.Repeat("x", 11)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if body := rec.Body.String(); body != `{"detail":"Request body too large"}` {
		t.Fatalf("body = %s", body)
	}
	if recs := sink.records(); len(recs) != 1 || recs[0].Kind != secevent.InputRejected {
		t.Fatalf("events = %+v", recs)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("small"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("small body status = %d", rec.Code)
	}

	// reads with a large declared body are not the size guard's concern
	r = httptest.NewRequest(http.MethodGet, "/", strings.NewReader(strings.Repeat("x", 50)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
}

func TestRequestSize_CapsUndeclaredBodies(t *testing.T) {
	var readErr error
	h := RequestSize(10, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 50)))
	r.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), r)

	var mbe *http.MaxBytesError
	if readErr == nil || !errorsAs(readErr, &mbe) {
		t.Fatalf("read error = %v, want *http.MaxBytesError", readErr)
	}
}

func TestSuspiciousRequests(t *testing.T) {
	em, sink := newEvents()
	reached := 0
	h := SuspiciousRequests(DefaultSignatures, em, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
	}))

	bad := []string{
		"/static/../../etc/shadow",
		"/api/projects?q=%3Cscript%3Ealert(1)%3C/script%3E",
		"/api/projects?name=x'%20OR%20'1",
		"/api/projects?name=x%27+or+%271",
		"/api/projects?q=1%20UNION%20SELECT%20password",
		"/api/projects?q=UnIoN+SeLeCt",
		"/download?f=..%5Cwindows",
		"/api/projects?cb=JavaScript:alert(1)",
		"/api/projects/..",
		"/api/./contact",
	}
	for _, target := range bad {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
		if body := rec.Body.String(); body != `{"detail":"Bad request"}` {
			t.Errorf("%s: body %s reveals too much", target, body)
		}
	}
	if reached != 0 {
		t.Fatalf("downstream reached %d times", reached)
	}

	recs := sink.records()
	if len(recs) != len(bad) {
		t.Fatalf("events = %d, want %d", len(recs), len(bad))
	}
	if got := recs[0].Details["reason"]; got != "suspicious_pattern:../" {
		t.Fatalf("reason = %v", got)
	}
	if got := recs[len(recs)-1].Details["reason"]; got != "suspicious_pattern:"+DotSegment {
		t.Fatalf("dot segment reason = %v", got)
	}

	clean := httptest.NewRequest(http.MethodGet, "/api/projects?category=web&featured=true", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, clean)
	if reached != 1 || rec.Code != http.StatusOK {
		t.Fatalf("clean request blocked: status %d", rec.Code)
	}
}
