// Package search selects the correct book among search-result candidates.
package search

import (
	"bookgraph/internal/normalize"
	"bookgraph/internal/types"
)

// Outcome classifies a match attempt.
type Outcome int

const (
	// Found means a qualifying candidate was selected.
	Found Outcome = iota
	// NotFound means the results were searched but nothing qualified.
	NotFound
	// ParseFailure means the candidate list itself was malformed.
	ParseFailure
)

// MatchResult is the outcome of matching a target against candidates.
type MatchResult struct {
	Outcome   Outcome
	Candidate *types.Candidate
}

// Match picks the first qualifying candidate, in input order.
//
// When targetAuthor is empty the first candidate is accepted
// unconditionally: ISBN-based lookups are specific enough that any hit is
// authoritative. Otherwise a candidate qualifies when the first
// comma-delimited segment of the normalized target author appears in its
// normalized author list and its format tag is a physical-book variant.
func Match(candidates []types.Candidate, targetAuthor, targetTitle string) MatchResult {
	if candidates == nil {
		return MatchResult{Outcome: ParseFailure}
	}
	if len(candidates) == 0 {
		return MatchResult{Outcome: NotFound}
	}

	if targetAuthor == "" {
		return MatchResult{Outcome: Found, Candidate: &candidates[0]}
	}

	want := normalize.FirstAuthor(targetAuthor)
	for i := range candidates {
		c := &candidates[i]
		if !c.IsPhysical() {
			continue
		}
		for _, a := range c.Authors {
			if normalize.AuthorKey(a) == want {
				return MatchResult{Outcome: Found, Candidate: c}
			}
		}
	}
	return MatchResult{Outcome: NotFound}
}
