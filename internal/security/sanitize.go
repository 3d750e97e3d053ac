// Package security provides input sanitization and heuristic abuse
// detection for inbound chat text. Both are advisory layers: sanitization
// strips markup that could leak into rendered output, and abuse scoring
// classifies messages without blocking them.
package security

import (
	"regexp"
	"strings"
)

// DefaultMaxInputLength is the truncation bound applied by Sanitize when
// callers have no stricter requirement.
const DefaultMaxInputLength = 1000

var (
	jsProtocolRegex   = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerRegex = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// Sanitize strips angle brackets, javascript: protocol markers, and
// inline event-handler attribute patterns from input, trims surrounding
// whitespace, and hard-truncates to maxLength runes (no ellipsis, not
// word-aware). Empty input yields an empty string. A maxLength <= 0 falls
// back to DefaultMaxInputLength.
func Sanitize(input string, maxLength int) string {
	if input == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}

	s := strings.ReplaceAll(input, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = jsProtocolRegex.ReplaceAllString(s, "")
	s = eventHandlerRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > maxLength {
		s = string(runes[:maxLength])
	}
	return s
}
