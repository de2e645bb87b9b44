// Package urlutil normalizes target site URLs and joins paths onto them.
package urlutil

import (
	"net/url"
	"strings"
)

// NormalizeBase trims whitespace and trailing slashes from a base URL.
func NormalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}

// Join builds an absolute URL from a base origin and a path. Absolute paths
// are returned unchanged.
func Join(base, path string) string {
	base = NormalizeBase(base)
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// Root is the site root of base, always ending in a single slash.
func Root(base string) string {
	return NormalizeBase(base) + "/"
}

// IsAbsoluteHTTP reports whether raw is an http(s) URL with a host.
func IsAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SameOrigin reports whether a and b share scheme and host.
func SameOrigin(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}
