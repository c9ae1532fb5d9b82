package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"

	"bookgraph/internal/config"
	"bookgraph/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod.
// Detail pages render their recommendation slider client-side, so a plain
// GET never sees it; the fetcher waits for the request's WaitSelector
// before snapshotting the DOM.
type BrowserFetcher struct {
	browser *rod.Browser
	cfg     *config.Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu   sync.Mutex
	page *rod.Page
}

// NewBrowserFetcher launches a headless browser and connects to it.
func NewBrowserFetcher(cfg *config.Config, limiter *rate.Limiter, logger *slog.Logger) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With("component", "browser_fetcher"),
	}

	launchURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	bf.logger.Info("browser fetcher ready", "stealth", cfg.Fetcher.Stealth)
	return bf, nil
}

// Fetch navigates to a URL, waits for the page (and the requested
// selector) to render, and returns the snapshot with the final URL.
// The crawl is sequential; one page is reused across fetches.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if bf.limiter != nil {
		if err := bf.limiter.Wait(ctx); err != nil {
			return nil, &types.FetchError{URL: req.URL, Err: err, Retryable: false}
		}
	}

	bf.mu.Lock()
	defer bf.mu.Unlock()

	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, Err: err, Retryable: true}
	}

	timeout := bf.cfg.Fetcher.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	p := page.Context(ctx).Timeout(timeout)
	if err := p.Navigate(req.URL); err != nil {
		bf.dropPage()
		return nil, &types.FetchError{URL: req.URL, Err: err, Retryable: true}
	}
	if err := p.WaitLoad(); err != nil {
		bf.dropPage()
		return nil, &types.FetchError{URL: req.URL, Err: fmt.Errorf("wait load: %w", err), Retryable: true}
	}

	// The final URL comes from the page itself: an ISBN query that hits
	// exactly one product redirects straight to its detail page, while an
	// ambiguous one stays on the search endpoint, and only the address
	// bar shows which happened.
	finalURL := req.URL
	if info, err := p.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	// Skip the selector wait on disambiguation landings: the search page
	// never renders a detail slider, and the caller only needs FinalURL.
	redirected := req.RedirectMarker != "" && strings.Contains(finalURL, req.RedirectMarker)
	if req.WaitSelector != "" && !redirected {
		if err := bf.waitForSelector(p, req.WaitSelector); err != nil {
			bf.dropPage()
			return nil, &types.FetchError{
				URL:       req.URL,
				Err:       fmt.Errorf("wait for %q: %w", req.WaitSelector, err),
				Retryable: true,
			}
		}
	}

	html, err := p.HTML()
	if err != nil {
		bf.dropPage()
		return nil, &types.FetchError{URL: req.URL, Err: err, Retryable: true}
	}

	duration := time.Since(start)
	bf.logger.Debug("browser fetch complete",
		"url", req.URL,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return &types.Response{
		StatusCode:    200, // Rod doesn't easily expose status codes
		Body:          []byte(html),
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}, nil
}

// waitForSelector blocks until the element exists in the DOM.
func (bf *BrowserFetcher) waitForSelector(p *rod.Page, selector string) error {
	_, err := p.Element(selector)
	return err
}

// getPage returns the reusable page, creating it on first use.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	if bf.page != nil {
		return bf.page, nil
	}

	var page *rod.Page
	var err error
	if bf.cfg.Fetcher.Stealth {
		page, err = stealth.Page(bf.browser)
	} else {
		page, err = bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, err
	}
	bf.page = page
	return page, nil
}

// dropPage discards the reusable page after a failed fetch so the next
// attempt starts from a fresh target.
func (bf *BrowserFetcher) dropPage() {
	if bf.page != nil {
		_ = bf.page.Close()
		bf.page = nil
	}
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.page != nil {
		_ = bf.page.Close()
		bf.page = nil
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}
