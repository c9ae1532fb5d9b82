package types

// ResolutionStatus records how far a book got through detail resolution.
// Placeholder rows hold a graph position for an ISBN whose page could not
// be resolved; a later pass may upgrade them to resolved, never the reverse.
type ResolutionStatus string

const (
	StatusResolved    ResolutionStatus = "resolved"
	StatusPlaceholder ResolutionStatus = "placeholder"
)

// Sentinel titles used for placeholder rows. Seeds that never matched any
// search result are stored under TitleUnmatched; recommendation targets whose
// detail page could not be resolved are stored under TitleUnknown.
const (
	TitleUnmatched = "N/A"
	TitleUnknown   = "Unknown"
)

// Book is a node in the recommendation graph, keyed by ISBN. ISBNs are
// opaque strings; some look numeric but leading digits must be preserved.
type Book struct {
	ISBN             string
	Title            string
	PageCount        int
	PublishedDate    string
	Publisher        string
	Format           string
	Edition          string
	Language         string
	OriginalLanguage string
	Rating           float64
	RatingCount      int
	Description      string

	// Rank is the book's position in the seed list, or zero if the book
	// was only ever discovered as a recommendation target.
	Rank int

	Status ResolutionStatus
}

// IsPlaceholder reports whether the row is an unresolved stub.
func (b *Book) IsPlaceholder() bool {
	return b.Status == StatusPlaceholder
}

// BookDetail is the extractor's output for one detail page: the book's
// fields plus the ISBNs its page recommends. Author order is preserved
// for display.
type BookDetail struct {
	Book            Book
	Authors         []string
	Recommendations []string
}

// Seed is one crawl input record. Author may be empty; Rank is the
// 1-based position in the seed list and is always nonzero for real seeds.
type Seed struct {
	Title  string
	Author string
	Rank   int
}
