// Package crawler walks the recommendation graph: resolve a seed, persist
// it, then recursively resolve every book its page recommends, stitching
// the edges into the graph store. Every failure degrades to a placeholder
// node or a logged skip; only losing the store aborts a run.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"bookgraph/internal/config"
	"bookgraph/internal/fetcher"
	"bookgraph/internal/normalize"
	"bookgraph/internal/search"
	"bookgraph/internal/store"
	"bookgraph/internal/types"
)

// Resolver resolves a confirmed detail-page URL into a BookDetail.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (*types.BookDetail, error)
}

// Crawler orchestrates the sequential graph walk. It is the store's only
// writer; one book is fully resolved and persisted before the next begins.
type Crawler struct {
	cfg      *config.Config
	searcher fetcher.Fetcher
	resolver Resolver
	store    store.GraphStore
	logger   *slog.Logger
	stats    Stats
}

// New creates a Crawler. The searcher fetches search-result pages (plain
// HTTP is enough for those); detail pages go through the resolver.
func New(cfg *config.Config, searcher fetcher.Fetcher, resolver Resolver, st store.GraphStore, logger *slog.Logger) *Crawler {
	return &Crawler{
		cfg:      cfg,
		searcher: searcher,
		resolver: resolver,
		store:    st,
		logger:   logger.With("component", "crawler"),
	}
}

// Stats returns the crawl counters.
func (c *Crawler) Stats() *Stats {
	return &c.stats
}

// CrawlSeed resolves one seed book by title/author search, persists it,
// and expands its recommendation edges. Per-book failures are recorded as
// placeholders and do not propagate; only store read failures do.
func (c *Crawler) CrawlSeed(ctx context.Context, seed types.Seed) error {
	c.stats.SeedsCrawled.Add(1)
	log := c.logger.With("title", seed.Title, "author", seed.Author, "rank", seed.Rank)

	title := normalize.Transliterate(seed.Title)
	searchURL := search.QueryURL(c.cfg.Site.BaseURL, title)

	resp, err := c.searcher.Fetch(ctx, &types.Request{URL: searchURL})
	if err != nil {
		log.Error("seed search fetch failed", "url", searchURL, "error", err)
		c.stats.FetchFailures.Add(1)
		return c.placeholderSeed(ctx, seed)
	}

	candidates, err := search.ParseCandidates(resp, c.logger)
	if err != nil {
		log.Error("seed search results unparseable", "url", searchURL, "error", err)
		return c.placeholderSeed(ctx, seed)
	}

	res := search.Match(candidates, seed.Author, seed.Title)
	if res.Outcome != search.Found {
		log.Warn("no qualifying candidate for seed", "candidates", len(candidates))
		return c.placeholderSeed(ctx, seed)
	}

	detail, err := c.resolver.Resolve(ctx, c.absoluteURL(res.Candidate.URL))
	if err != nil {
		log.Error("seed detail resolution failed", "url", res.Candidate.URL, "error", err)
		c.stats.FetchFailures.Add(1)
		return c.placeholderSeed(ctx, seed)
	}

	isbn := detail.Book.ISBN
	existing, err := c.store.GetBook(ctx, isbn)
	switch {
	case err == nil && !existing.IsPlaceholder():
		// Already fully crawled, likely by an earlier run. Only the rank
		// may still need upgrading.
		if existing.Rank == 0 && seed.Rank != 0 {
			if err := c.store.UpgradeRank(ctx, isbn, seed.Rank); err != nil {
				log.Error("rank upgrade failed", "isbn", isbn, "error", err)
				return nil
			}
			c.stats.RankUpgrades.Add(1)
			log.Info("upgraded recommendation stub to seed rank", "isbn", isbn)
		}
		c.stats.DedupHits.Add(1)
		return nil
	case err != nil && !errors.Is(err, types.ErrBookNotFound):
		return fmt.Errorf("store lookup for %s: %w", isbn, err)
	}

	detail.Book.Rank = seed.Rank
	if err := c.store.SaveBook(ctx, detail); err != nil {
		log.Error("seed persist failed", "isbn", isbn, "error", err)
		return nil
	}
	c.stats.BooksPersisted.Add(1)
	log.Info("seed persisted", "isbn", isbn, "recommendations", len(detail.Recommendations))

	if err := c.pause(ctx); err != nil {
		return err
	}

	// Recommendation expansion is gated on the rank flag: only ranked
	// seeds grow the graph.
	if seed.Rank == 0 {
		return nil
	}
	for _, rec := range detail.Recommendations {
		if err := c.crawlRecommendation(ctx, rec, isbn, 1); err != nil {
			return err
		}
	}
	return nil
}

// CrawlRecommendation resolves one recommendation target and records the
// edge parent -> target.
func (c *Crawler) CrawlRecommendation(ctx context.Context, isbn, parentISBN string) error {
	return c.crawlRecommendation(ctx, isbn, parentISBN, 1)
}

func (c *Crawler) crawlRecommendation(ctx context.Context, isbn, parentISBN string, depth int) error {
	log := c.logger.With("isbn", isbn, "parent", parentISBN, "depth", depth)

	// Visited-ISBN dedup: a target persisted once anywhere in the crawl
	// is never re-fetched or re-expanded. This is what bounds recursion
	// on cyclic and reconverging graphs.
	if _, err := c.store.GetBook(ctx, isbn); err == nil {
		c.stats.DedupHits.Add(1)
		return c.linkEdge(ctx, parentISBN, isbn, log)
	} else if !errors.Is(err, types.ErrBookNotFound) {
		return fmt.Errorf("store lookup for %s: %w", isbn, err)
	}

	if c.cfg.Crawler.MaxDepth > 0 && depth > c.cfg.Crawler.MaxDepth {
		log.Warn("recursion depth cap reached, leaving placeholder")
		if err := c.savePlaceholder(ctx, isbn, types.TitleUnknown, nil); err != nil {
			return err
		}
		return c.linkEdge(ctx, parentISBN, isbn, log)
	}

	detail, err := c.resolveRecommendation(ctx, isbn, log)
	if err != nil {
		log.Error("recommendation resolution failed, leaving placeholder", "error", err)
		c.stats.FetchFailures.Add(1)
		// The placeholder makes future references short-circuit through
		// the existence check instead of retrying indefinitely.
		if err := c.savePlaceholder(ctx, isbn, types.TitleUnknown, nil); err != nil {
			return err
		}
		return c.linkEdge(ctx, parentISBN, isbn, log)
	}

	if detail.Book.ISBN != isbn {
		// The graph is keyed by the identifiers found on recommendation
		// sliders; a disagreeing detail page would orphan the edge.
		log.Warn("detail page reports different ISBN, keeping slider identifier",
			"extracted", detail.Book.ISBN)
		detail.Book.ISBN = isbn
	}

	detail.Book.Rank = 0
	if err := c.store.SaveBook(ctx, detail); err != nil {
		log.Error("recommendation persist failed", "error", err)
		return nil
	}
	c.stats.BooksPersisted.Add(1)

	if err := c.linkEdge(ctx, parentISBN, isbn, log); err != nil {
		return err
	}
	if err := c.pause(ctx); err != nil {
		return err
	}

	for _, rec := range detail.Recommendations {
		if err := c.crawlRecommendation(ctx, rec, isbn, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// resolveRecommendation obtains the detail record for an ISBN. The ISBN
// query redirects straight to the detail page when unique; when the site
// answers with a disambiguation page instead, fall back to a search-and-
// match pass with no author constraint.
func (c *Crawler) resolveRecommendation(ctx context.Context, isbn string, log *slog.Logger) (*types.BookDetail, error) {
	queryURL := search.QueryURL(c.cfg.Site.BaseURL, isbn)

	detail, err := c.resolver.Resolve(ctx, queryURL)
	if err == nil {
		return detail, nil
	}
	if !errors.Is(err, types.ErrRedirected) {
		return nil, err
	}

	log.Info("ambiguous ISBN, falling back to search match")
	resp, err := c.searcher.Fetch(ctx, &types.Request{URL: queryURL})
	if err != nil {
		return nil, err
	}
	candidates, err := search.ParseCandidates(resp, c.logger)
	if err != nil {
		return nil, err
	}
	res := search.Match(candidates, "", isbn)
	if res.Outcome != search.Found {
		return nil, types.ErrNotFound
	}
	return c.resolver.Resolve(ctx, c.absoluteURL(res.Candidate.URL))
}

// RecrawlPlaceholders re-attempts detail resolution for every placeholder
// in the store. Placeholders persisted for seeds that never resolved to
// an ISBN carry a synthetic key and are skipped; they need a fresh seed
// crawl instead.
func (c *Crawler) RecrawlPlaceholders(ctx context.Context) error {
	placeholders, err := c.store.ListPlaceholders(ctx)
	if err != nil {
		return fmt.Errorf("list placeholders: %w", err)
	}
	c.logger.Info("recrawling placeholders", "count", len(placeholders))

	for _, p := range placeholders {
		if strings.HasPrefix(p.ISBN, seedSentinelPrefix) {
			continue
		}
		log := c.logger.With("isbn", p.ISBN)

		detail, err := c.resolveRecommendation(ctx, p.ISBN, log)
		if err != nil {
			log.Warn("placeholder still unresolvable", "error", err)
			c.stats.FetchFailures.Add(1)
			continue
		}
		detail.Book.ISBN = p.ISBN
		detail.Book.Rank = p.Rank
		if err := c.store.SaveBook(ctx, detail); err != nil {
			log.Error("placeholder upgrade failed", "error", err)
			continue
		}
		c.stats.BooksPersisted.Add(1)
		log.Info("placeholder resolved", "title", detail.Book.Title)

		if err := c.pause(ctx); err != nil {
			return err
		}
		for _, rec := range detail.Recommendations {
			if err := c.crawlRecommendation(ctx, rec, p.ISBN, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// seedSentinelPrefix keys placeholder rows for seeds whose search never
// produced an ISBN. The rank makes the key unique per seed.
const seedSentinelPrefix = "seed:"

// placeholderSeed persists the failure marker for a seed that could not
// be resolved, so the run records that the seed was attempted. The seed's
// own rank is not stored: rank marks books confirmed on the site.
func (c *Crawler) placeholderSeed(ctx context.Context, seed types.Seed) error {
	var authors []string
	if seed.Author != "" {
		authors = []string{seed.Author}
	}
	isbn := fmt.Sprintf("%s%d", seedSentinelPrefix, seed.Rank)
	return c.savePlaceholder(ctx, isbn, types.TitleUnmatched, authors)
}

func (c *Crawler) savePlaceholder(ctx context.Context, isbn, title string, authors []string) error {
	detail := &types.BookDetail{
		Book: types.Book{
			ISBN:   isbn,
			Title:  title,
			Status: types.StatusPlaceholder,
		},
		Authors: authors,
	}
	if err := c.store.SaveBook(ctx, detail); err != nil {
		c.logger.Error("placeholder persist failed", "isbn", isbn, "error", err)
		return nil
	}
	c.stats.PlaceholdersCreated.Add(1)
	return nil
}

func (c *Crawler) linkEdge(ctx context.Context, sourceISBN, targetISBN string, log *slog.Logger) error {
	if err := c.store.LinkRecommendation(ctx, sourceISBN, targetISBN); err != nil {
		log.Error("edge link failed", "error", err)
		return nil
	}
	c.stats.EdgesLinked.Add(1)
	return nil
}

// pause inserts the randomized politeness delay after a book's processing.
func (c *Crawler) pause(ctx context.Context) error {
	d := fetcher.RandomDelay(c.cfg.Crawler.DelayMin, c.cfg.Crawler.DelayMax)
	if d <= 0 {
		return nil
	}
	return fetcher.Sleep(ctx, d)
}

// absoluteURL resolves a candidate's (possibly relative) URL against the
// site base.
func (c *Crawler) absoluteURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() {
		return raw
	}
	base, err := url.Parse(c.cfg.Site.BaseURL)
	if err != nil {
		return raw
	}
	return base.ResolveReference(u).String()
}
