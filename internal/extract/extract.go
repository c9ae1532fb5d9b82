// Package extract converts a rendered book detail page into a canonical
// BookDetail record plus its outgoing recommendation ISBNs.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"bookgraph/internal/normalize"
	"bookgraph/internal/types"
)

// CSS selectors for the detail page layout.
const (
	titleSelector       = "h1.text-xl"
	authorSelector      = "div.product-autor a.link"
	detailListSelector  = "ul.description-dot-list li"
	detailKeySelector   = "span.text-700"
	descriptionSelector = "p.mb-0"
	ratingSelector      = "div.product-rating"
	ratingValueSelector = "span.text-l.text-800"
	ratingCountSelector = "span.text-s"
)

// XPath for the recommendation slider covers. Each cover anchor carries
// the recommended book's ISBN as a data attribute.
const recommendationsXPath = `//div[@id='product-page-banner-container']` +
	`//div[contains(@class,'book-slick-slider')]` +
	`//div[starts-with(@class,'new-teaser')]` +
	`//a[contains(@class,'cover-container')]`

const isbnAttr = "data-product-identifier"

// Extractor parses detail pages. All numeric fields degrade to zero when
// the expected markup is missing; partial data beats losing the record.
type Extractor struct {
	labels map[string]field
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		labels: labelTable(),
		logger: logger.With("component", "extractor"),
	}
}

// Details extracts the book record and recommendation ISBNs from a
// rendered detail page. Title and ISBN are required; a page missing
// either yields an ExtractError.
func (e *Extractor) Details(pageURL string, body []byte) (*types.BookDetail, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &types.ExtractError{URL: pageURL, Err: err}
	}
	doc := goquery.NewDocumentFromNode(root)

	detail := &types.BookDetail{}
	detail.Book.Status = types.StatusResolved

	title := strings.TrimSpace(doc.Find(titleSelector).First().Text())
	if title == "" {
		return nil, &types.ExtractError{URL: pageURL, Field: "title", Err: fmt.Errorf("element %q not found", titleSelector)}
	}
	detail.Book.Title = normalize.Transliterate(title)

	doc.Find(authorSelector).Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Text())
		if name != "" && name != "&" {
			detail.Authors = append(detail.Authors, normalize.Transliterate(name))
		}
	})

	e.extractFields(doc, detail)
	if detail.Book.ISBN == "" {
		return nil, &types.ExtractError{URL: pageURL, Field: "isbn", Err: fmt.Errorf("ISBN13 entry missing from detail list")}
	}

	detail.Book.Description = strings.TrimSpace(doc.Find(descriptionSelector).First().Text())
	e.extractRating(doc, detail)

	// The slider is rendered client-side; htmlquery walks the same parsed
	// tree goquery wraps.
	for _, anchor := range htmlquery.Find(root, recommendationsXPath) {
		isbn := htmlquery.SelectAttr(anchor, isbnAttr)
		if isbn == "" {
			e.logger.Warn("recommendation cover without identifier", "url", pageURL)
			continue
		}
		detail.Recommendations = append(detail.Recommendations, isbn)
	}

	return detail, nil
}

// extractFields walks the labeled detail list and fills the mapped fields.
// Unmapped labels are ignored.
func (e *Extractor) extractFields(doc *goquery.Document, detail *types.BookDetail) {
	doc.Find(detailListSelector).Each(func(_ int, li *goquery.Selection) {
		keySel := li.Find(detailKeySelector).First()
		key := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(keySel.Text()), ":"))
		if key == "" {
			return
		}
		f, ok := e.labels[key]
		if !ok {
			return
		}
		// The value is the list item's text with the label removed.
		keySel.Remove()
		value := strings.TrimSpace(li.Text())
		f.set(&detail.Book, value)
	})
}

// extractRating reads the rating block, defaulting both values to zero
// when the block or either span is absent.
func (e *Extractor) extractRating(doc *goquery.Document, detail *types.BookDetail) {
	block := doc.Find(ratingSelector).First()
	if block.Length() == 0 {
		return
	}

	if v := strings.TrimSpace(block.Find(ratingValueSelector).First().Text()); v != "" {
		detail.Book.Rating = parseLocaleFloat(v)
	}
	if v := strings.TrimSpace(block.Find(ratingCountSelector).First().Text()); v != "" {
		// Rendered as "(123 anmeldelser)"; the count is the first token.
		count, _, _ := strings.Cut(v, " ")
		count = strings.Trim(count, "()")
		detail.Book.RatingCount = parseInt(count)
	}
}

// parseLocaleFloat parses a decimal that may use a comma separator.
// Returns 0 on malformed input.
func parseLocaleFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseInt parses a non-negative integer, returning 0 on malformed input.
func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
