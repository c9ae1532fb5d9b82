package types

// Physical-book format tags as they appear in search result records.
// Only these qualify during author-constrained matching; e-books,
// audiobooks and other formats are rejected.
const (
	WorkBook     = "Bog"
	WorkUsedBook = "Brugt bog"
)

// Candidate is one parsed search-result record. The search page embeds
// these as JSON on each teaser element; parsing them is page-format glue
// that lives next to the matcher.
type Candidate struct {
	Authors []string `json:"Authors"`
	Work    string   `json:"Work"`
	URL     string   `json:"Url"`
}

// IsPhysical reports whether the candidate's format tag is a physical-book
// variant (new or used).
func (c *Candidate) IsPhysical() bool {
	return c.Work == WorkBook || c.Work == WorkUsedBook
}
