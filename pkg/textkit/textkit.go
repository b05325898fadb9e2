// Package textkit holds small text helpers shared by the reminder core and
// the command layer: length capping with code-fence balancing and HTML
// escaping for Telegram payloads.
package textkit

import (
	"html"
	"strings"
	"unicode/utf8"
)

// Fence is the code-fence delimiter that Shorten keeps balanced.
const Fence = "```"

// MessageLimit is the maximum reminder message length in runes.
const MessageLimit = 1024

// Shorten returns s truncated to at most n runes.
//
// If the cut leaves an odd number of code fences, the last 3 runes of the
// result are replaced with a closing fence so the fence count becomes even
// again. An already short string is returned unchanged.
func Shorten(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	s = truncRunes(s, n)
	if strings.Count(s, Fence)%2 != 0 {
		s = truncRunes(s, n-len(Fence)) + Fence
	}
	return s
}

// TruncRunes returns s truncated to at most n runes, with an ellipsis
// appended when something was cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncRunes(s, n-1) + "…"
}

func truncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// EscapeHTML escapes text for Telegram HTML parse mode.
func EscapeHTML(s string) string { return html.EscapeString(s) }
