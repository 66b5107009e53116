package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without
// panicking. Used when logging sensitive data like tokens, where only a
// prefix may be shown. A negative maxLen returns the empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL normalizes a URL for comparison by removing trailing
// slashes, so issuer identifiers with and without a trailing slash are
// treated as equivalent.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
