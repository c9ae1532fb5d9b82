package extract

import (
	"strings"

	"bookgraph/internal/types"
)

// field writes one labeled detail value into the book record.
type field struct {
	set func(b *types.Book, value string)
}

// labelTable maps the detail list's locale labels to canonical fields.
func labelTable() map[string]field {
	return map[string]field{
		"Sprog": {func(b *types.Book, v string) {
			b.Language = v
		}},
		"Sidetal": {func(b *types.Book, v string) {
			b.PageCount = parseInt(v)
		}},
		"Udgivelsesdato": {func(b *types.Book, v string) {
			b.PublishedDate = v
		}},
		"ISBN13": {func(b *types.Book, v string) {
			// ISBNs stay opaque strings; whitespace is the only cleanup.
			b.ISBN = strings.TrimSpace(v)
		}},
		"Forlag": {func(b *types.Book, v string) {
			b.Publisher = v
		}},
		"Format": {func(b *types.Book, v string) {
			b.Format = v
		}},
		"Udgave": {func(b *types.Book, v string) {
			b.Edition = v
		}},
		"Originalsprog": {func(b *types.Book, v string) {
			b.OriginalLanguage = v
		}},
	}
}
