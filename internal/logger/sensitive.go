package logger

import (
	"regexp"
	"strings"
)

// redactionRule pairs a pattern with its replacement template
type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// sensitiveDataRules contains patterns for sensitive data that should be redacted in logs
var sensitiveDataRules = []redactionRule{
	// Auth tokens (Bearer, JWT)
	{regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`), "${1}[REDACTED]"},

	// API keys, tokens, secrets and signing keys
	{regexp.MustCompile(`(?i)((api|access|auth|token|secret|private|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`), "${1}[REDACTED]"},

	// credentials embedded in DSNs and RPC URLs (user:pass@host)
	{regexp.MustCompile(`(://[^:/\s]+:)([^@\s]+)(@)`), "${1}[REDACTED]${3}"},
}

// SensitiveKeywords are keywords that indicate fields may contain sensitive data
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "private_key", "privatekey",
	"api_key", "apikey", "authorization", "dsn",
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, rule := range sensitiveDataRules {
		input = rule.pattern.ReplaceAllString(input, rule.replacement)
	}

	return input
}

// isSensitiveKey reports whether a field key names a secret
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitiveKey := range SensitiveKeywords {
		if strings.Contains(keyLower, sensitiveKey) {
			return true
		}
	}
	return false
}
