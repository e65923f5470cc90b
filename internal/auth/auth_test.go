package auth

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type spyRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (s *spyRecorder) RecordFailure(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
}

type eventLog struct {
	mu   sync.Mutex
	recs []secevent.Record
}

func (l *eventLog) sink() secevent.Sink {
	return secevent.SinkFunc(func(_ context.Context, r secevent.Record) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.recs = append(l.recs, r)
	})
}

func (l *eventLog) kinds() []secevent.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]secevent.Kind, len(l.recs))
	for i, r := range l.recs {
		out[i] = r.Kind
	}
	return out
}

func serve(g *Gate, key string) *httptest.ResponseRecorder {
	reached := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r := httptest.NewRequest(http.MethodPost, "/api/projects", nil)
	r = r.WithContext(clientip.WithContext(r.Context(), "198.51.100.20"))
	if key != "" {
		r.Header.Set(HeaderAPIKey, key)
	}
	rec := httptest.NewRecorder()
	g.Require(reached).ServeHTTP(rec, r)
	return rec
}

func TestCheck(t *testing.T) {
	t.Parallel()
	g := New(testSecret, nil, nil)
	tests := []struct {
		in   string
		want Decision
	}{
		{testSecret, Allowed},
		{"", Unauthorized},
		{testSecret[:31], Unauthorized},
		{testSecret + "x", Unauthorized},
		{strings.ToUpper(testSecret), Unauthorized},
	}
	for _, tt := range tests {
		if got := g.Check(tt.in); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRequire_Success(t *testing.T) {
	t.Parallel()
	events := &eventLog{}
	rec := &spyRecorder{}
	g := New(testSecret, rec, secevent.New(events.sink()))

	resp := serve(g, testSecret)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.Code)
	}
	if k := events.kinds(); len(k) != 1 || k[0] != secevent.AuthSuccess {
		t.Fatalf("events = %v", k)
	}
	if len(rec.ids) != 0 {
		t.Fatalf("failures recorded on success: %v", rec.ids)
	}
}

func TestRequire_WrongKey(t *testing.T) {
	t.Parallel()
	events := &eventLog{}
	rec := &spyRecorder{}
	g := New(testSecret, rec, secevent.New(events.sink()))

	for _, key := range []string{"", "wrong", testSecret[:16]} {
		resp := serve(g, key)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("key %q: status = %d, want 401", key, resp.Code)
		}
		if got := resp.Header().Get("WWW-Authenticate"); got != "API-Key" {
			t.Fatalf("WWW-Authenticate = %q", got)
		}
		if body := resp.Body.String(); body != `{"detail":"Unauthorized"}` {
			t.Fatalf("body = %s", body)
		}
	}
	if len(rec.ids) != 3 || rec.ids[0] != "198.51.100.20" {
		t.Fatalf("recorded failures = %v", rec.ids)
	}
	for _, k := range events.kinds() {
		if k != secevent.AuthFailure {
			t.Fatalf("unexpected event kind %s", k)
		}
	}
}

func TestRequire_EmptySecretFailsClosed(t *testing.T) {
	t.Parallel()
	events := &eventLog{}
	rec := &spyRecorder{}
	g := New("", rec, secevent.New(events.sink()))

	for _, key := range []string{"", "anything", testSecret} {
		resp := serve(g, key)
		if resp.Code != http.StatusServiceUnavailable {
			t.Fatalf("key %q: status = %d, want 503", key, resp.Code)
		}
		if resp.Header().Get("WWW-Authenticate") != "" {
			t.Fatal("503 must not advertise an auth scheme")
		}
	}
	if len(rec.ids) != 0 {
		t.Fatal("misconfiguration must not count as a client failure")
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	for _, r := range events.recs {
		if r.Kind != secevent.AccessDenied || r.Details["reason"] != "auth_not_configured" {
			t.Fatalf("unexpected event %+v", r)
		}
	}
}

// TestCheck_TimingIndependentOfMismatchPosition compares the median cost of
// a mismatch in the first byte with one in the last byte. The bound is loose:
// it catches a short-circuiting compare, not nanosecond noise.
func TestCheck_TimingIndependentOfMismatchPosition(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	g := New(testSecret, nil, nil)

	early := "X" + testSecret[1:]
	late := testSecret[:len(testSecret)-1] + "X"

	measure := func(key string) time.Duration {
		const rounds, perRound = 31, 2000
		samples := make([]time.Duration, rounds)
		for i := range samples {
			start := time.Now()
			for j := 0; j < perRound; j++ {
				g.Check(key)
			}
			samples[i] = time.Since(start)
		}
		sort.Slice(samples, func(a, b int) bool { return samples[a] < samples[b] })
		return samples[rounds/2]
	}

	// warm up
	measure(early)
	e, l := measure(early), measure(late)
	ratio := float64(e) / float64(l)
	if math.Abs(math.Log(ratio)) > math.Log(3) {
		t.Fatalf("early mismatch %v vs late mismatch %v differ by more than 3x", e, l)
	}
}
