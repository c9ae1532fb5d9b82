// Package resolve turns a confirmed detail-page URL into a canonical
// BookDetail record, retrying transient fetch failures and flagging
// disambiguation redirects for the caller.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bookgraph/internal/config"
	"bookgraph/internal/extract"
	"bookgraph/internal/fetcher"
	"bookgraph/internal/types"
)

// Resolver fetches and extracts detail pages.
type Resolver struct {
	fetcher   fetcher.Fetcher
	extractor *extract.Extractor
	cfg       *config.Config
	logger    *slog.Logger
}

// New creates a Resolver on top of a (typically browser) fetcher.
func New(f fetcher.Fetcher, e *extract.Extractor, cfg *config.Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		fetcher:   f,
		extractor: e,
		cfg:       cfg,
		logger:    logger.With("component", "resolver"),
	}
}

// Resolve fetches pageURL and extracts its BookDetail.
//
// Error taxonomy: a FetchError after retries are exhausted (transient,
// the caller may place a placeholder), types.ErrRedirected (the fetch
// landed on a disambiguation page, the caller must fall back to a search
// pass), or an ExtractError (required fields missing from the document).
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (*types.BookDetail, error) {
	resp, err := r.fetchWithRetry(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if r.isRedirected(pageURL, resp.FinalURL) {
		r.logger.Info("detail fetch redirected", "url", pageURL, "final_url", resp.FinalURL)
		return nil, fmt.Errorf("%w: %s -> %s", types.ErrRedirected, pageURL, resp.FinalURL)
	}

	detail, err := r.extractor.Details(pageURL, resp.Body)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// fetchWithRetry retries retryable fetch failures up to the configured
// budget, honoring any server-supplied back-off.
func (r *Resolver) fetchWithRetry(ctx context.Context, pageURL string) (*types.Response, error) {
	req := &types.Request{
		URL:            pageURL,
		WaitSelector:   r.cfg.Site.DetailReadySelector,
		RedirectMarker: r.cfg.Site.RedirectMarker,
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.Crawler.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.Crawler.RetryDelay
			var fetchErr *types.FetchError
			if errors.As(lastErr, &fetchErr) && fetchErr.RetryAfter > delay {
				delay = fetchErr.RetryAfter
			}
			r.logger.Warn("retrying fetch", "url", pageURL, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := fetcher.Sleep(ctx, delay); err != nil {
				return nil, lastErr
			}
		}

		resp, err := r.fetcher.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var fetchErr *types.FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.Retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

// isRedirected reports whether the fetch ended on a disambiguation page
// rather than a detail page. Detail resolution navigates by ISBN query;
// a unique hit redirects to the detail page, an ambiguous one stays on
// the search endpoint, recognizable by the marker substring in the
// final URL.
func (r *Resolver) isRedirected(requested, final string) bool {
	if final == "" {
		final = requested
	}
	return strings.Contains(final, r.cfg.Site.RedirectMarker)
}
