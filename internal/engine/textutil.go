package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/net/html"
)

var (
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
	timestampRe = regexp.MustCompile(`\d+:\d+\s*`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// CleanHTML strips HTML tags and trims whitespace.
func CleanHTML(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}

// CleanCaption decodes entities (caption XML is often double-escaped), strips tags
// and collapses whitespace.
func CleanCaption(s string) string {
	s = html.UnescapeString(html.UnescapeString(s))
	s = CleanHTML(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// StripTimestamps removes "0:00"-style markers copied along with a pasted transcript.
func StripTimestamps(s string) string {
	return strings.TrimSpace(timestampRe.ReplaceAllString(s, ""))
}

// CollapseSpace replaces every whitespace run with a single space.
func CollapseSpace(s string) string {
	return spaceRe.ReplaceAllString(s, " ")
}

// StripFences removes markdown code fence markers from LLM output.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// Truncate returns the first n bytes of s.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Preview caps s at limit runes on a word boundary, for logs and listings.
func Preview(s string, limit int) string {
	return strutil.TruncateAtWord(CollapseSpace(s), limit)
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Fingerprint returns a short stable hex digest of s.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// MaskKey hides all but the edges of a credential.
func MaskKey(key string) string {
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return key[:6] + "..." + key[len(key)-4:]
}
