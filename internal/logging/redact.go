package logging

import (
	"regexp"
	"strings"
)

// Patterns for credentials that should never reach log output.
var secretPatterns = []*regexp.Regexp{
	// JWTs (access and refresh tokens)
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{20,})`),

	// token query parameters on websocket URLs
	regexp.MustCompile(`(?i)token=[a-zA-Z0-9._%-]{20,}`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credential material in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range []string{"password", "token", "secret", "credential", "authorization"} {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
