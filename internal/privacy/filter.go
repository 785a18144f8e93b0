// Package privacy removes author-only text from documents before they are
// indexed.
package privacy

import (
	"regexp"
	"strings"
)

var (
	// privateTagRegex matches <private>...</private> blocks (non-greedy, dotall).
	privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)
	commentRegex    = regexp.MustCompile(`(?s)<!--.*?-->`)
	blankRunRegex   = regexp.MustCompile(`\n{3,}`)
)

// Redact strips <private> blocks and HTML comments from content. Runs of
// blank lines left behind are collapsed.
func Redact(content string) string {
	out := privateTagRegex.ReplaceAllString(content, "")
	out = commentRegex.ReplaceAllString(out, "")
	out = blankRunRegex.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
