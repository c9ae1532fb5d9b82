package resolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"bookgraph/internal/config"
	"bookgraph/internal/extract"
	"bookgraph/internal/types"
)

const detailPage = `<html><body>
<h1 class="text-xl">Fahrenheit 451</h1>
<div class="product-autor"><a class="link link--black">Ray Bradbury</a></div>
<ul class="description-dot-list">
	<li><span class="text-700">ISBN13:</span> 9781451673319</li>
</ul>
</body></html>`

// fakeFetcher replays a scripted sequence of responses and errors.
type fakeFetcher struct {
	responses []*types.Response
	errs      []error
	calls     int
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, &types.FetchError{URL: req.URL, Err: errors.New("script exhausted"), Retryable: false}
}

func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) Type() string { return "fake" }

func newResolver(f *fakeFetcher) *Resolver {
	cfg := config.DefaultConfig()
	cfg.Crawler.MaxRetries = 2
	cfg.Crawler.RetryDelay = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(f, extract.New(logger), cfg, logger)
}

func TestResolveSuccess(t *testing.T) {
	url := "https://www.saxo.com/dk/fahrenheit-451"
	f := &fakeFetcher{responses: []*types.Response{{Body: []byte(detailPage), FinalURL: url}}}

	detail, err := newResolver(f).Resolve(context.Background(), url)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if detail.Book.ISBN != "9781451673319" {
		t.Errorf("ISBN = %q", detail.Book.ISBN)
	}
	if f.calls != 1 {
		t.Errorf("calls = %d, want 1", f.calls)
	}
}

func TestResolveRetriesTransientFailure(t *testing.T) {
	url := "https://www.saxo.com/dk/fahrenheit-451"
	f := &fakeFetcher{
		errs: []error{
			&types.FetchError{URL: url, Err: errors.New("timeout"), Retryable: true},
			nil,
		},
		responses: []*types.Response{nil, {Body: []byte(detailPage), FinalURL: url}},
	}

	if _, err := newResolver(f).Resolve(context.Background(), url); err != nil {
		t.Fatalf("Resolve after retry: %v", err)
	}
	if f.calls != 2 {
		t.Errorf("calls = %d, want 2", f.calls)
	}
}

func TestResolveExhaustsRetries(t *testing.T) {
	url := "https://www.saxo.com/dk/fahrenheit-451"
	transient := &types.FetchError{URL: url, Err: errors.New("timeout"), Retryable: true}
	f := &fakeFetcher{errs: []error{transient, transient, transient, transient}}

	_, err := newResolver(f).Resolve(context.Background(), url)
	var fetchErr *types.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	// MaxRetries=2 means three attempts total.
	if f.calls != 3 {
		t.Errorf("calls = %d, want 3", f.calls)
	}
}

func TestResolveNonRetryableFailsFast(t *testing.T) {
	url := "https://www.saxo.com/dk/fahrenheit-451"
	f := &fakeFetcher{errs: []error{
		&types.FetchError{URL: url, Err: errors.New("gone"), Retryable: false},
	}}

	if _, err := newResolver(f).Resolve(context.Background(), url); err == nil {
		t.Fatal("expected error")
	}
	if f.calls != 1 {
		t.Errorf("calls = %d, want 1", f.calls)
	}
}

func TestResolveDetectsRedirect(t *testing.T) {
	url := "https://www.saxo.com/dk/products/9781451673319"
	f := &fakeFetcher{responses: []*types.Response{{
		Body:     []byte("<html>search results</html>"),
		FinalURL: "https://www.saxo.com/dk/products/search?query=9781451673319",
	}}}

	_, err := newResolver(f).Resolve(context.Background(), url)
	if !errors.Is(err, types.ErrRedirected) {
		t.Fatalf("expected ErrRedirected, got %v", err)
	}
}

func TestResolveExtractionIncomplete(t *testing.T) {
	url := "https://www.saxo.com/dk/broken"
	f := &fakeFetcher{responses: []*types.Response{{Body: []byte("<html></html>"), FinalURL: url}}}

	_, err := newResolver(f).Resolve(context.Background(), url)
	var exErr *types.ExtractError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected ExtractError, got %v", err)
	}
}
