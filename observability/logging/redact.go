package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys whose values never reach the log stream, matched case-insensitively
// on the attribute key or any "_"/"-" separated part of it.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"bearer":        {},
	"passphrase":    {},
	"password":      {},
	"privatekey":    {},
	"secret":        {},
	"token":         {},
}

// IsSensitive reports whether values logged under key are redacted.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[normalized]; ok {
		return true
	}
	for _, part := range strings.FieldsFunc(normalized, func(r rune) bool { return r == '_' || r == '-' || r == '.' }) {
		if _, ok := sensitiveKeys[part]; ok {
			return true
		}
	}
	return false
}

// MaskField always redacts non-empty values, whatever the key.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is applied by the handler to every attribute.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
