package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bookgraph/internal/types"
)

// Each result teaser carries its record as JSON in this attribute.
const (
	teaserSelector  = "div.product-list-teaser"
	dataValAttr     = "data-val"
	searchQueryPath = "/products/search"
)

// QueryURL builds the search endpoint URL for a free-text query. Spaces
// become '+' the way the site's own search box encodes them; everything
// else is query-escaped. Queries are transliterated before they get here,
// so the escape is a no-op in practice.
func QueryURL(baseURL, query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		words[i] = url.QueryEscape(w)
	}
	return fmt.Sprintf("%s%s?query=%s", strings.TrimRight(baseURL, "/"), searchQueryPath, strings.Join(words, "+"))
}

// ParseCandidates extracts the ordered candidate records from a search
// results page. A page with no teaser elements yields an empty slice;
// a teaser whose embedded JSON cannot be decoded fails the whole parse,
// since the page format has likely changed under us.
func ParseCandidates(resp *types.Response, logger *slog.Logger) ([]types.Candidate, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParseFailure, err)
	}

	candidates := []types.Candidate{}
	var parseErr error

	doc.Find(teaserSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		raw, ok := sel.Find("a").First().Attr(dataValAttr)
		if !ok || raw == "" {
			logger.Warn("search teaser without data record", "index", i, "url", resp.FinalURL)
			return true
		}

		var c types.Candidate
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			parseErr = fmt.Errorf("%w: teaser %d: %v", types.ErrParseFailure, i, err)
			return false
		}
		candidates = append(candidates, c)
		return true
	})

	if parseErr != nil {
		return nil, parseErr
	}
	return candidates, nil
}
