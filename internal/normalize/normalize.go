// Package normalize shapes search output: URL cleanup, first-seen
// de-duplication by domain and URL, and image liveness checks.
package normalize

import (
	"regexp"

	"github.com/samber/lo"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	domainPattern = regexp.MustCompile(`(?i)^https?://([^/?#]+)(?:[/?#]|$)`)
)

// SanitizeURL replaces each run of whitespace with %20.
func SanitizeURL(raw string) string {
	return whitespaceRun.ReplaceAllString(raw, "%20")
}

// ExtractDomain returns the host[:port] part of an http(s) URL, keeping its
// case. Anything else is returned unchanged.
func ExtractDomain(raw string) string {
	match := domainPattern.FindStringSubmatch(raw)
	if len(match) < 2 || match[1] == "" {
		return raw
	}
	return match[1]
}

// Dedupe keeps the first item for each domain and URL, in input order. An
// item is dropped when either its URL or its domain was already seen.
func Dedupe[T any](items []T, urlOf func(T) string) []T {
	seenURLs := map[string]struct{}{}
	seenDomains := map[string]struct{}{}
	return lo.Filter(items, func(item T, _ int) bool {
		url := urlOf(item)
		domain := ExtractDomain(url)
		_, urlSeen := seenURLs[url]
		_, domainSeen := seenDomains[domain]
		if urlSeen || domainSeen {
			return false
		}
		seenURLs[url] = struct{}{}
		seenDomains[domain] = struct{}{}
		return true
	})
}
