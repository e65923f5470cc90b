package secevent

import (
	"fmt"
	"log/slog"
	"time"
)

// Kind enumerates the security event types.
type Kind string

const (
	AuthSuccess        Kind = "AUTH_SUCCESS"
	AuthFailure        Kind = "AUTH_FAILURE"
	RateLimitTriggered Kind = "RATE_LIMIT_TRIGGERED"
	InputRejected      Kind = "INPUT_REJECTED"
	AccessDenied       Kind = "ACCESS_DENIED"
	SuspiciousRequest  Kind = "SUSPICIOUS_REQUEST"
	HoneypotTriggered  Kind = "HONEYPOT_TRIGGERED"
)

// Kinds lists every Kind, used to pre-initialize metric series.
var Kinds = []Kind{
	AuthSuccess,
	AuthFailure,
	RateLimitTriggered,
	InputRejected,
	AccessDenied,
	SuspiciousRequest,
	HoneypotTriggered,
}

// Event is what a guard reports. ClientIP is the raw client identifier;
// it is masked before it leaves the Emitter.
type Event struct {
	Kind      Kind
	ClientIP  string
	Path      string
	Method    string
	UserAgent string
	Details   map[string]any
}

// Record is the sanitized, write-once form of an Event handed to a Sink.
type Record struct {
	ID        string
	Time      time.Time
	Kind      Kind
	Level     slog.Level
	Message   string
	ClientIP  string
	Path      string
	Method    string
	UserAgent string
	Details   map[string]any
}

// level is Info for successful authentication and Warn for everything else.
func (k Kind) level() slog.Level {
	if k == AuthSuccess {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func (k Kind) message(details map[string]any) string {
	switch k {
	case AuthSuccess:
		return "Admin authentication successful"
	case AuthFailure:
		return "Admin authentication failed: " + detailString(details, "reason", "invalid_key")
	case RateLimitTriggered:
		return "Rate limit exceeded: " + detailString(details, "limit", "?") + " requests"
	case InputRejected:
		return "Input validation failed on field '" + detailString(details, "field", "unknown") + "'"
	case AccessDenied:
		return "Access denied: " + detailString(details, "reason", "unauthorized")
	case SuspiciousRequest:
		return "Suspicious request detected: " + detailString(details, "reason", "unknown")
	case HoneypotTriggered:
		return "Honeypot endpoint accessed"
	default:
		return "Security event: " + string(k)
	}
}

func detailString(details map[string]any, key, fallback string) string {
	v, ok := details[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
