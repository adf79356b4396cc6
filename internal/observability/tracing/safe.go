package tracing

import (
	"errors"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var sensitiveKeys = []string{"key", "token", "password", "secret", "authorization", "nif", "cif"}

var secretPattern = regexp.MustCompile(`(?i)(key|token|password|secret|client_secret)=([^&\s]+)`)

// SafeAttributes drops attributes whose key looks like a credential or a tax id.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns err with credential-looking query values masked.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := secretPattern.ReplaceAllString(err.Error(), "$1=***")
	return errors.New(msg)
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if key == s || strings.HasSuffix(key, "."+s) || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
}
