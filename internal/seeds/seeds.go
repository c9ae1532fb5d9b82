// Package seeds loads the crawl seed list from CSV.
package seeds

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"bookgraph/internal/types"
)

// Header columns the seed file must carry. Extra columns are ignored.
const (
	titleColumn  = "book_title"
	authorColumn = "book_author"
)

// ReadFile loads the seed list from a CSV file. Seed files are exported
// from a Windows tool and arrive in Windows-1250; set utf8 for files
// already in UTF-8.
func ReadFile(path string, utf8 bool) ([]types.Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if !utf8 {
		r = transform.NewReader(f, charmap.Windows1250.NewDecoder())
	}
	return Read(r)
}

// Read parses seeds from CSV content with a header row. Each seed's rank
// is its 1-based position in the file, preserving the input ordering as
// the ranking.
func Read(r io.Reader) ([]types.Seed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read seed header: %w", err)
	}
	titleIdx, authorIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case titleColumn:
			titleIdx = i
		case authorColumn:
			authorIdx = i
		}
	}
	if titleIdx < 0 || authorIdx < 0 {
		return nil, fmt.Errorf("seed header missing %q or %q: %v", titleColumn, authorColumn, header)
	}

	var out []types.Seed
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read seed row %d: %w", len(out)+2, err)
		}
		if titleIdx >= len(rec) || authorIdx >= len(rec) {
			continue
		}
		title := strings.TrimSpace(rec[titleIdx])
		if title == "" {
			continue
		}
		out = append(out, types.Seed{
			Title:  title,
			Author: strings.TrimSpace(rec[authorIdx]),
			Rank:   len(out) + 1,
		})
	}
	return out, nil
}
