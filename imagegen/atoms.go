// Package imagegen talks to remote image-generation APIs and stores what they
// return.
//
// atoms.go contains pure utility functions with no dependencies.
package imagegen

import (
	"strings"
	"unicode/utf8"
)

// ClassifyAPIError maps an application-level error body onto an APIErrorKind.
//
// This is a pure function. code is the numeric code the body carries (0 when
// absent), status the symbolic status string, message the free text. All three
// are inspected because upstreams are inconsistent about which one they fill.
//
// Rate limiting matches:
//   - code 429
//   - status RESOURCE_EXHAUSTED
//   - "rate limit", "too many requests" or "quota" in the message
//
// Unauthorized matches:
//   - code 401
//   - status UNAUTHENTICATED
//   - "unauthorized", "invalid authentication" or "invalid credentials" in the message
//
// Example:
//
//	ClassifyAPIError(429, "", "")                              // APIErrorRateLimited
//	ClassifyAPIError(0, "UNAUTHENTICATED", "")                 // APIErrorUnauthorized
//	ClassifyAPIError(400, "INVALID_ARGUMENT", "bad prompt")    // APIErrorOther
func ClassifyAPIError(code int, status, message string) APIErrorKind {
	status = strings.ToUpper(strings.TrimSpace(status))
	lower := strings.ToLower(message)

	switch {
	case code == 429 || status == "RESOURCE_EXHAUSTED":
		return APIErrorRateLimited
	case code == 401 || status == "UNAUTHENTICATED":
		return APIErrorUnauthorized
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "quota"):
		return APIErrorRateLimited
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "invalid authentication"),
		strings.Contains(lower, "invalid credentials"):
		return APIErrorUnauthorized
	default:
		return APIErrorOther
	}
}

// IsLocalEndpoint checks if the given endpoint URL is a local/self-hosted endpoint.
//
// Local endpoints match localhost, 127.0.0.1, 0.0.0.0 and the 192.168.x.x and
// 10.x.x.x private ranges.
func IsLocalEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "localhost") ||
		strings.Contains(lower, "127.0.0.1") ||
		strings.Contains(lower, "0.0.0.0") ||
		strings.Contains(lower, "://192.168.") ||
		strings.Contains(lower, "://10.")
}

// extensionForFormat maps an image.DecodeConfig format name to a file
// extension. Unknown formats fall back to .png.
func extensionForFormat(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return ".jpg"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	default:
		return ".png"
	}
}

// sanitizeFilename replaces path separators and other unsafe characters.
func sanitizeFilename(filename string) string {
	unsafe := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\n", "\r", "\t", " "}
	result := filename
	for _, char := range unsafe {
		result = strings.ReplaceAll(result, char, "_")
	}

	if len(result) > 200 {
		result = result[:200]
	}
	if result == "" {
		result = "image"
	}
	return result
}

// TruncateText shortens text to at most maxLen bytes for log fields,
// appending "..." when cut. It never splits a multi-byte rune.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	suffix := "..."
	if maxLen <= len(suffix) {
		suffix = ""
	}
	cut := maxLen - len(suffix)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + suffix
}
