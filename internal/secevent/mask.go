package secevent

import (
	"net/netip"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maskedPlaceholder = "masked"
	maxUserAgentRunes = 100
)

// sensitiveKeys are dropped from Details, compared case-insensitively.
var sensitiveKeys = map[string]struct{}{
	"password": {},
	"api_key":  {},
	"token":    {},
	"secret":   {},
}

// MaskIP blanks the last octet of a dotted-quad IPv4 address. Every other
// input, including IPv6, IPv4-mapped IPv6 and the "unknown" sentinel, becomes
// a fixed placeholder.
func MaskIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil || !addr.Is4() {
		return maskedPlaceholder
	}
	b := addr.As4()
	return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + "." + strconv.Itoa(int(b[2])) + ".xxx"
}

// TruncateUserAgent cuts ua to at most 100 characters without splitting a
// multi-byte rune.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= maxUserAgentRunes {
		return ua
	}
	n := 0
	for i := range ua {
		if n == maxUserAgentRunes {
			return ua[:i]
		}
		n++
	}
	return ua
}

// SanitizeDetails returns a copy of details without sensitive keys.
// nil in, nil out.
func SanitizeDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if _, bad := sensitiveKeys[strings.ToLower(k)]; bad {
			continue
		}
		out[k] = v
	}
	return out
}
