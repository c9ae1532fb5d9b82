package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the crawl failure taxonomy. Each is recoverable at
// the book/edge granularity; only store-connection loss aborts a run.
var (
	ErrNotFound     = errors.New("no qualifying candidate in search results")
	ErrParseFailure = errors.New("search results could not be parsed")
	ErrRedirected   = errors.New("fetch landed on a disambiguation page")
	ErrBookNotFound = errors.New("book not found in store")
	ErrMaxDepth     = errors.New("max recursion depth exceeded")
)

// FetchError wraps errors that occur while fetching a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ExtractError wraps errors that occur while extracting a detail page.
// Field names the first required element that was missing.
type ExtractError struct {
	URL   string
	Field string
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error for %s (field=%q): %v", e.URL, e.Field, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// StoreError wraps errors from a graph store backend.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error (%s, %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
