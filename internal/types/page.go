package types

import (
	"bytes"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Request describes one page fetch. The crawler issues two kinds: search
// queries (plain HTTP) and detail pages (browser-rendered).
type Request struct {
	// URL is the target URL to fetch.
	URL string

	// WaitSelector, when set, makes a browser fetcher wait for the
	// element to appear before snapshotting the rendered document.
	WaitSelector string

	// RedirectMarker, when set, short-circuits the WaitSelector wait if
	// the navigation lands on a URL containing the marker: such landings
	// are disambiguation pages that never render the awaited element.
	RedirectMarker string

	// Timeout overrides the configured request timeout for this request.
	Timeout time.Duration
}

// Response is the result of fetching a request.
type Response struct {
	// StatusCode is the HTTP status code (browser fetches report 200).
	StatusCode int

	// Body is the raw (or rendered) document bytes.
	Body []byte

	// FinalURL is the URL after any redirects. The resolver compares it
	// against the requested URL to detect disambiguation landings.
	FinalURL string

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration

	// FetchedAt is when this response was received.
	FetchedAt time.Time

	doc *goquery.Document
}

// Document returns a parsed goquery document, lazily initializing it.
func (r *Response) Document() (*goquery.Document, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	r.doc = doc
	return doc, nil
}
