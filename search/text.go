package search

import (
	"regexp"
	"strings"
)

var (
	// filenameRe matches tokens that look like filenames, e.g.
	// "Q3_roadmap.pdf" or "deploy-checklist.md".
	filenameRe = regexp.MustCompile(`\b[\w-]+\.[A-Za-z0-9]{1,5}\b`)

	// ticketRe matches issue-tracker identifiers like "INFRA-1432".
	ticketRe = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeQuery folds case and whitespace so equivalent queries map to
// the same cache key and the same plan.
func NormalizeQuery(query string) string {
	query = strings.TrimSpace(strings.ToLower(query))
	return whitespaceRe.ReplaceAllString(query, " ")
}

// tokenCount counts whitespace-separated tokens.
func tokenCount(query string) int {
	return len(strings.Fields(query))
}

// looksLikeLookup reports whether the query targets a specific artifact
// rather than a topic: a filename, a ticket id, or a quoted phrase.
func looksLikeLookup(query string) bool {
	if filenameRe.MatchString(query) || ticketRe.MatchString(query) {
		return true
	}
	// A properly closed quoted phrase signals a verbatim lookup.
	first := strings.Index(query, `"`)
	if first >= 0 && strings.Index(query[first+1:], `"`) >= 0 {
		return true
	}
	return false
}
