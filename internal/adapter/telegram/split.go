package telegram

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// boundaries, in preference order, for choosing a split point inside a
// window of text.
var boundaries = []string{"\n\n", "\n", ". ", " "}

var htmlCommentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)

// SmartSplit chunks text into pieces of at most limit characters.
// Text within the limit is returned unchanged as a single chunk. Longer
// text is cut at the latest paragraph break, newline, sentence end, or
// space inside each window; a boundary is only accepted past 30% of the
// window, otherwise the text is hard-split at the limit. Whitespace is
// trimmed at each cut.
func SmartSplit(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	minCut := int(float64(limit) * 0.3)
	var chunks []string
	rest := text
	for len(rest) > limit {
		window := rest[:limit]

		cut, resume := -1, 0
		for _, b := range boundaries {
			if idx := strings.LastIndex(window, b); idx > minCut {
				cut, resume = idx, idx+len(b)
				if b == ". " {
					cut++ // keep the sentence-ending period
				}
				break
			}
		}
		if cut < 0 {
			// Hard split. Back up to a rune boundary so a multi-byte
			// character is never severed across chunks.
			cut = limit
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			resume = cut
		}

		chunk := strings.TrimSpace(rest[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = strings.TrimSpace(rest[resume:])
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// EscapeHTML prepares untrusted text for Telegram's HTML parse mode:
// HTML comments are stripped and &, <, > become entities.
func EscapeHTML(text string) string {
	text = htmlCommentPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// FormatJobNotification composes the fixed-shape job completion message:
// status emoji, short job id, status word, escaped summary, PR link.
func FormatJobNotification(jobID string, success bool, summary, prURL string) string {
	emoji, status := "✅", "completed"
	if !success {
		emoji, status = "❌", "failed"
	}
	shortID := jobID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("%s Job <code>%s</code> %s\n\n%s\n\n%s",
		emoji, shortID, status, EscapeHTML(summary), prURL)
}
