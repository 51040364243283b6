package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces credential material in log output.
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns match credential material that may show up inside
// free-form strings such as upstream error bodies.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._~+/=-]{16,})`), // Authorization header values
	regexp.MustCompile(`(ya29\.[a-zA-Z0-9._-]{20,})`),            // Google OAuth access tokens
	regexp.MustCompile(`(sk-[a-zA-Z0-9_-]{20,})`),                // OpenAI keys
	regexp.MustCompile(`(AIza[a-zA-Z0-9_-]{35})`),                // Google API keys
	regexp.MustCompile(`(?i)((?:token|secret|api_key|apikey)\s*[:=]\s*[^\s,;"]{8,})`),
}

// sensitiveKeyParts mark field names whose value is always secret.
var sensitiveKeyParts = []string{
	"SECRET",
	"AUTHORIZATION",
	"PASSWORD",
	"API_KEY",
	"APIKEY",
	"BEARER",
}

// RedactSensitiveData replaces every credential-looking substring of value.
//
// Example:
//
//	RedactSensitiveData("auth failed for Bearer ya29.a0AfH6SMBx...")
//	// "auth failed for [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField reports whether a field name implies a secret value.
// A bare "token" key or one ending in "_token" counts; descriptive keys such
// as "token_name" do not.
func IsSensitiveField(fieldName string) bool {
	upper := strings.ToUpper(fieldName)
	if upper == "TOKEN" || strings.HasSuffix(upper, "_TOKEN") {
		return true
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(upper, part) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether value matches any credential pattern.
func ContainsSensitiveData(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
