package logutil

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "session"):
		return true
	case strings.Contains(normalized, "auth"):
		return true
	default:
		return false
	}
}

// RedactURLForLog masks userinfo and sensitive query values in a URL.
// Unparseable input is returned truncated rather than dropped.
func RedactURLForLog(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return TruncateForLog(raw, 200)
	}
	if u.User != nil {
		u.User = url.User("[REDACTED]")
	}
	if u.RawQuery == "" {
		return u.String()
	}

	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range query[k] {
			if IsSensitiveLogField(k) {
				v = "[REDACTED]"
			}
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(normalized[cut]) {
		cut--
	}
	return normalized[:cut] + "... [truncated]"
}

// CollapseWhitespace folds runs of whitespace in DOM text into single spaces.
func CollapseWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
