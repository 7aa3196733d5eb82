package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// Redacted is the placeholder written in place of sensitive log values.
const Redacted = "[REDACTED]"

// Keys that carry no secret material and may pass through unmasked.
// Everything else routed through MaskField comes out as Redacted.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"method":    {},
	"symbol":    {},
	"market":    {},
	"account":   {},
}

// IsPlainKey reports whether a key may be logged without masking.
func IsPlainKey(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// PlainKeys returns the sorted allowlist. Sanitization tests walk it to
// keep the set deliberate.
func PlainKeys() []string {
	keys := make([]string, 0, len(plainKeys))
	for key := range plainKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue replaces a non-empty value with the placeholder. Empty
// strings pass through so absent fields stay readable.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return Redacted
}

// MaskField builds a slog attribute whose value is masked unless the
// key is allowlisted. Key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsPlainKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}
