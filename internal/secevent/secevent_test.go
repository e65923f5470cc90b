package secevent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSink captures records for assertions.
type recordingSink struct {
	mu   sync.Mutex
	recs []Record
}

func (s *recordingSink) Write(_ context.Context, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *recordingSink) all() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.recs...)
}

func TestMaskIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.77", "203.0.113.xxx"},
		{"10.0.0.1", "10.0.0.xxx"},
		{" 192.168.1.254 ", "192.168.1.xxx"},
		{"2001:db8::1", "masked"},
		{"::ffff:203.0.113.77", "masked"},
		{"unknown", "masked"},
		{"", "masked"},
		{"1.2.3", "masked"},
		{"a.b.c.d", "masked"},
		{"999.1.1.1", "masked"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := MaskIP(tt.in); got != tt.want {
				t.Fatalf("MaskIP(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	short := "curl/8.4.0"
	if got := TruncateUserAgent(short); got != short {
		t.Fatalf("short UA changed: %q", got)
	}

	long := strings.Repeat("a", 250)
	if got := TruncateUserAgent(long); len(got) != 100 {
		t.Fatalf("len = %d, want 100", len(got))
	}

	// multi-byte runes are counted as characters, never split
	multi := strings.Repeat("é", 150)
	got := TruncateUserAgent(multi)
	if n := len([]rune(got)); n != 100 {
		t.Fatalf("rune count = %d, want 100", n)
	}
	if !strings.HasPrefix(multi, got) {
		t.Fatal("truncated UA is not a prefix of the original")
	}
}

func TestSanitizeDetails_DropsSensitiveKeys(t *testing.T) {
	t.Parallel()
	in := map[string]any{
		"reason":   "invalid_api_key",
		"Password": "hunter2",
		"API_KEY":  "abc",
		"token":    "t",
		"Secret":   "s",
		"field":    "email",
	}
	got := SanitizeDetails(in)
	if len(got) != 2 {
		t.Fatalf("got %v, want only reason and field", got)
	}
	if got["reason"] != "invalid_api_key" || got["field"] != "email" {
		t.Fatalf("unexpected details %v", got)
	}
	if _, ok := in["Password"]; !ok {
		t.Fatal("input map was mutated")
	}
	if SanitizeDetails(nil) != nil {
		t.Fatal("nil details should stay nil")
	}
}

func TestEmit_MasksIPEverywhere(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	e := New(sink)

	e.Emit(context.Background(), Event{
		Kind:      RateLimitTriggered,
		ClientIP:  "203.0.113.77",
		Path:      "/api/projects",
		Method:    "GET",
		UserAgent: "probe",
		Details:   map[string]any{"limit": 100},
	})

	recs := sink.all()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].ClientIP != "203.0.113.xxx" {
		t.Fatalf("ClientIP = %q", recs[0].ClientIP)
	}
	if dump := fmt.Sprintf("%+v", recs[0]); strings.Contains(dump, ".77") {
		t.Fatalf("record leaks last octet: %s", dump)
	}
	if recs[0].Message != "Rate limit exceeded: 100 requests" {
		t.Fatalf("Message = %q", recs[0].Message)
	}
	if recs[0].ID == "" {
		t.Fatal("expected an event id")
	}
}

func TestEmit_Messages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind    Kind
		details map[string]any
		want    string
	}{
		{AuthSuccess, nil, "Admin authentication successful"},
		{AuthFailure, map[string]any{"reason": "invalid_api_key"}, "Admin authentication failed: invalid_api_key"},
		{InputRejected, map[string]any{"field": "email", "reason": "invalid"}, "Input validation failed on field 'email'"},
		{AccessDenied, map[string]any{"reason": "auth_not_configured"}, "Access denied: auth_not_configured"},
		{SuspiciousRequest, map[string]any{"reason": "suspicious_pattern:../"}, "Suspicious request detected: suspicious_pattern:../"},
		{HoneypotTriggered, nil, "Honeypot endpoint accessed"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			sink := &recordingSink{}
			New(sink).Emit(context.Background(), Event{Kind: tt.kind, ClientIP: "10.0.0.1", Details: tt.details})
			recs := sink.all()
			if len(recs) != 1 || recs[0].Message != tt.want {
				t.Fatalf("got %+v, want message %q", recs, tt.want)
			}
		})
	}
}

func TestEmit_NeverPanics(t *testing.T) {
	t.Parallel()
	var recovered atomic.Int32
	e := New(SinkFunc(func(context.Context, Record) { panic("sink down") }),
		WithPanicHandler(func(any) { recovered.Add(1) }),
	)

	var noCtx context.Context
	e.Emit(noCtx, Event{Kind: HoneypotTriggered, ClientIP: "not-an-ip"})
	e.Emit(context.Background(), Event{Kind: Kind("bogus"), ClientIP: "::1"})

	if recovered.Load() != 2 {
		t.Fatalf("recovered = %d, want 2", recovered.Load())
	}

	var nilEmitter *Emitter
	nilEmitter.Emit(context.Background(), Event{Kind: AuthFailure})
}

func TestEmit_Observer(t *testing.T) {
	t.Parallel()
	var seen []Kind
	e := New(&recordingSink{}, WithObserver(func(k Kind) { seen = append(seen, k) }))
	e.Emit(context.Background(), Event{Kind: AuthFailure})
	e.Emit(context.Background(), Event{Kind: AuthSuccess})
	if len(seen) != 2 || seen[0] != AuthFailure || seen[1] != AuthSuccess {
		t.Fatalf("observer saw %v", seen)
	}
}

func TestEmit_ObserverCountsWhenSinkPanics(t *testing.T) {
	t.Parallel()
	var observed, recovered atomic.Int32
	e := New(SinkFunc(func(context.Context, Record) { panic("sink down") }),
		WithObserver(func(Kind) { observed.Add(1) }),
		WithPanicHandler(func(any) { recovered.Add(1) }),
	)
	e.Emit(context.Background(), Event{Kind: RateLimitTriggered, ClientIP: "203.0.113.7"})
	if observed.Load() != 1 || recovered.Load() != 1 {
		t.Fatalf("observed = %d recovered = %d, want 1 and 1", observed.Load(), recovered.Load())
	}
}

func TestAsyncSink_DeliversAndFlushes(t *testing.T) {
	t.Parallel()
	rec := &recordingSink{}
	a := NewAsyncSink(rec, 16)
	for i := 0; i < 10; i++ {
		a.Write(context.Background(), Record{Kind: AuthFailure})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(rec.all()); n != 10 {
		t.Fatalf("delivered = %d, want 10", n)
	}
	if a.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", a.Dropped())
	}
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := SinkFunc(func(context.Context, Record) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	var drops atomic.Int32
	a := NewAsyncSink(slow, 1, WithOnDrop(func() { drops.Add(1) }))

	// first record is picked up by the worker and blocks it
	a.Write(context.Background(), Record{})
	<-started

	// one fits in the buffer, the rest must be dropped without blocking
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			a.Write(context.Background(), Record{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked on a full buffer")
	}

	if a.Dropped() != 4 || drops.Load() != 4 {
		t.Fatalf("dropped = %d (hook %d), want 4", a.Dropped(), drops.Load())
	}

	close(release)
	_ = a.Close(context.Background())

	// writes after close are dropped, not panics
	a.Write(context.Background(), Record{})
	if a.Dropped() != 5 {
		t.Fatalf("dropped after close = %d, want 5", a.Dropped())
	}
}
