// Package normalize canonicalizes locale-specific text and author names so
// that spellings of the same identity compare equal across pages.
package normalize

import (
	"regexp"
	"strings"
)

// Danish letters and their ASCII digraph spellings. Both spellings of a
// name must normalize to the same key.
var transliterations = strings.NewReplacer(
	"æ", "ae",
	"ø", "oe",
	"å", "aa",
	"Æ", "Ae",
	"Ø", "Oe",
	"Å", "Aa",
)

var (
	suffixPattern      = regexp.MustCompile(`(?i)\b(?:Ltd|Inc|Co|LLC|LLP|PLC)\.?\b`)
	parenPattern       = regexp.MustCompile(`\(.*?\)`)
	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// Transliterate replaces Danish letters with their ASCII digraphs.
// Unrecognized characters pass through unchanged.
func Transliterate(text string) string {
	return transliterations.Replace(text)
}

// AuthorKey canonicalizes an author name for identity comparison:
// transliterate, strip legal-entity suffixes as whole words, strip
// parenthesized annotations, strip remaining punctuation, collapse
// whitespace, lowercase. Total and idempotent.
func AuthorKey(name string) string {
	name = Transliterate(name)
	name = suffixPattern.ReplaceAllString(name, "")
	name = parenPattern.ReplaceAllString(name, "")
	name = punctuationPattern.ReplaceAllString(name, "")
	name = whitespacePattern.ReplaceAllString(name, " ")
	return strings.ToLower(strings.TrimSpace(name))
}

// FirstAuthor returns the canonical key of the first comma-delimited
// segment of a seed's author field. Seed lists write "Last, First" or
// multiple authors into one cell; matching uses the first segment only.
func FirstAuthor(name string) string {
	name = strings.ReplaceAll(name, `"`, "")
	first, _, _ := strings.Cut(name, ",")
	return AuthorKey(first)
}
