package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"bookgraph/internal/config"
	"bookgraph/internal/search"
	"bookgraph/internal/types"
)

// fakeStore is an in-memory GraphStore honoring the same idempotency
// rules as the real backends.
type fakeStore struct {
	books   map[string]*types.Book
	authors map[string][]string
	edges   map[string]int
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:   map[string]*types.Book{},
		authors: map[string][]string{},
		edges:   map[string]int{},
	}
}

func (s *fakeStore) GetBook(_ context.Context, isbn string) (*types.Book, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	b, ok := s.books[isbn]
	if !ok {
		return nil, types.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) SaveBook(_ context.Context, detail *types.BookDetail) error {
	b := detail.Book
	if existing, ok := s.books[b.ISBN]; ok {
		if b.IsPlaceholder() && !existing.IsPlaceholder() {
			return nil
		}
		if b.Rank == 0 {
			b.Rank = existing.Rank
		}
	}
	s.books[b.ISBN] = &b
	s.authors[b.ISBN] = detail.Authors
	return nil
}

func (s *fakeStore) UpgradeRank(_ context.Context, isbn string, rank int) error {
	if b, ok := s.books[isbn]; ok && b.Rank == 0 {
		b.Rank = rank
	}
	return nil
}

func (s *fakeStore) LinkRecommendation(_ context.Context, sourceISBN, targetISBN string) error {
	s.edges[sourceISBN+"->"+targetISBN]++
	return nil
}

func (s *fakeStore) BookAuthors(_ context.Context, isbn string) ([]string, error) {
	return s.authors[isbn], nil
}

func (s *fakeStore) ListPlaceholders(context.Context) ([]types.Book, error) {
	var out []types.Book
	for _, b := range s.books {
		if b.IsPlaceholder() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeResolver serves canned details keyed by page URL and counts calls.
type fakeResolver struct {
	details map[string]*types.BookDetail
	errs    map[string]error
	calls   []string
}

func (r *fakeResolver) Resolve(_ context.Context, pageURL string) (*types.BookDetail, error) {
	r.calls = append(r.calls, pageURL)
	if err, ok := r.errs[pageURL]; ok {
		return nil, err
	}
	d, ok := r.details[pageURL]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *d
	cp.Authors = append([]string(nil), d.Authors...)
	cp.Recommendations = append([]string(nil), d.Recommendations...)
	return &cp, nil
}

// fakeSearcher serves canned search pages keyed by URL.
type fakeSearcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeSearcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	f.calls = append(f.calls, req.URL)
	if err, ok := f.errs[req.URL]; ok {
		return nil, err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return nil, fmt.Errorf("no canned page for %s", req.URL)
	}
	return &types.Response{StatusCode: 200, Body: []byte(body), FinalURL: req.URL}, nil
}

func (f *fakeSearcher) Close() error { return nil }
func (f *fakeSearcher) Type() string { return "fake" }

func teaserPage(candidates ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, c := range candidates {
		esc := strings.ReplaceAll(c, `"`, "&quot;")
		sb.WriteString(`<div class="product-list-teaser"><a data-val="` + esc + `" href="#">x</a></div>`)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func candidateJSON(author, work, u string) string {
	return fmt.Sprintf(`{"Authors":["%s"],"Work":"%s","Url":"%s"}`, author, work, u)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Site.BaseURL = "https://shop.test/dk"
	cfg.Crawler.DelayMin = 0
	cfg.Crawler.DelayMax = 0
	return cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func detail(isbn, title string, authors []string, recs ...string) *types.BookDetail {
	return &types.BookDetail{
		Book:            types.Book{ISBN: isbn, Title: title, Status: types.StatusResolved},
		Authors:         authors,
		Recommendations: recs,
	}
}

func newTestCrawler(cfg *config.Config, fs *fakeSearcher, fr *fakeResolver, st *fakeStore) *Crawler {
	return New(cfg, fs, fr, st, discard())
}

func TestCrawlSeedPersistsBookAndExpandsRecommendations(t *testing.T) {
	cfg := testConfig()
	seedURL := search.QueryURL(cfg.Site.BaseURL, "Fahrenheit 451")

	fs := &fakeSearcher{pages: map[string]string{
		seedURL: teaserPage(candidateJSON("Ray Bradbury", types.WorkBook, "/dk/fahrenheit-451")),
	}}
	fr := &fakeResolver{details: map[string]*types.BookDetail{
		cfg.Site.BaseURL + "/fahrenheit-451": detail("9780743247221", "Fahrenheit 451", []string{"Ray Bradbury"}, "9999999999991"),
		search.QueryURL(cfg.Site.BaseURL, "9999999999991"): detail("9999999999991", "The Martian Chronicles", []string{"Ray Bradbury"}),
	}}
	st := newFakeStore()

	if err := newTestCrawler(cfg, fs, fr, st).CrawlSeed(context.Background(), types.Seed{
		Title: "Fahrenheit 451", Author: "Ray Bradbury", Rank: 1,
	}); err != nil {
		t.Fatalf("CrawlSeed: %v", err)
	}

	seed := st.books["9780743247221"]
	if seed == nil || seed.Rank != 1 || seed.Status != types.StatusResolved {
		t.Fatalf("seed book = %+v", seed)
	}
	if got := st.authors["9780743247221"]; len(got) != 1 || got[0] != "Ray Bradbury" {
		t.Errorf("seed authors = %v", got)
	}
	rec := st.books["9999999999991"]
	if rec == nil || rec.Rank != 0 {
		t.Fatalf("recommendation book = %+v", rec)
	}
	if st.edges["9780743247221->9999999999991"] != 1 {
		t.Errorf("edges = %v", st.edges)
	}
}

func TestCrawlSeedUpgradesRankOfExistingBook(t *testing.T) {
	cfg := testConfig()
	seedURL := search.QueryURL(cfg.Site.BaseURL, "Fahrenheit 451")

	fs := &fakeSearcher{pages: map[string]string{
		seedURL: teaserPage(candidateJSON("Ray Bradbury", types.WorkBook, "/dk/fahrenheit-451")),
	}}
	fr := &fakeResolver{details: map[string]*types.BookDetail{
		cfg.Site.BaseURL + "/fahrenheit-451": detail("9780743247221", "Fahrenheit 451", []string{"Ray Bradbury"}),
	}}
	st := newFakeStore()
	st.books["9780743247221"] = &types.Book{ISBN: "9780743247221", Title: "Fahrenheit 451", Status: types.StatusResolved}

	if err := newTestCrawler(cfg, fs, fr, st).CrawlSeed(context.Background(), types.Seed{
		Title: "Fahrenheit 451", Author: "Ray Bradbury", Rank: 7,
	}); err != nil {
		t.Fatalf("CrawlSeed: %v", err)
	}
	if got := st.books["9780743247221"].Rank; got != 7 {
		t.Errorf("rank = %d, want 7", got)
	}
}

func TestCrawlSeedFetchFailureLeavesUnmatchedPlaceholder(t *testing.T) {
	cfg := testConfig()
	seedURL := search.QueryURL(cfg.Site.BaseURL, "Vanished Book")

	fs := &fakeSearcher{errs: map[string]error{seedURL: errors.New("timeout")}}
	st := newFakeStore()

	c := newTestCrawler(cfg, fs, &fakeResolver{}, st)
	if err := c.CrawlSeed(context.Background(), types.Seed{Title: "Vanished Book", Author: "Nobody", Rank: 12}); err != nil {
		t.Fatalf("CrawlSeed: %v", err)
	}

	p := st.books["seed:12"]
	if p == nil || p.Title != types.TitleUnmatched || !p.IsPlaceholder() || p.Rank != 0 {
		t.Fatalf("placeholder = %+v", p)
	}
	if got := st.authors["seed:12"]; len(got) != 1 || got[0] != "Nobody" {
		t.Errorf("placeholder authors = %v", got)
	}
	if c.Stats().PlaceholdersCreated.Load() != 1 {
		t.Errorf("stats = %+v", c.Stats().Snapshot())
	}
}

func TestCrawlSeedNoMatchLeavesPlaceholder(t *testing.T) {
	cfg := testConfig()
	seedURL := search.QueryURL(cfg.Site.BaseURL, "Some Title")

	// Only an e-book by the right author: nothing qualifies.
	fs := &fakeSearcher{pages: map[string]string{
		seedURL: teaserPage(candidateJSON("Jane Doe", "E-bog", "/dk/some-title-ebook")),
	}}
	st := newFakeStore()

	if err := newTestCrawler(cfg, fs, &fakeResolver{}, st).CrawlSeed(context.Background(), types.Seed{
		Title: "Some Title", Author: "Jane Doe", Rank: 3,
	}); err != nil {
		t.Fatalf("CrawlSeed: %v", err)
	}
	if p := st.books["seed:3"]; p == nil || p.Title != types.TitleUnmatched {
		t.Fatalf("placeholder = %+v", p)
	}
}

func TestUnrankedSeedDoesNotExpand(t *testing.T) {
	cfg := testConfig()
	seedURL := search.QueryURL(cfg.Site.BaseURL, "Quiet Book")

	fs := &fakeSearcher{pages: map[string]string{
		seedURL: teaserPage(candidateJSON("Jane Doe", types.WorkBook, "/dk/quiet-book")),
	}}
	fr := &fakeResolver{details: map[string]*types.BookDetail{
		cfg.Site.BaseURL + "/quiet-book": detail("9700000000017", "Quiet Book", []string{"Jane Doe"}, "9700000000024"),
	}}
	st := newFakeStore()

	if err := newTestCrawler(cfg, fs, fr, st).CrawlSeed(context.Background(), types.Seed{
		Title: "Quiet Book", Author: "Jane Doe",
	}); err != nil {
		t.Fatalf("CrawlSeed: %v", err)
	}
	if _, ok := st.books["9700000000024"]; ok {
		t.Error("unranked seed expanded its recommendations")
	}
	if len(st.edges) != 0 {
		t.Errorf("edges = %v", st.edges)
	}
}

func TestRecommendationAlreadyKnownOnlyLinks(t *testing.T) {
	cfg := testConfig()
	fr := &fakeResolver{}
	st := newFakeStore()
	st.books["9700000000031"] = &types.Book{ISBN: "9700000000031", Title: "Known", Status: types.StatusResolved}

	c := newTestCrawler(cfg, &fakeSearcher{}, fr, st)
	if err := c.CrawlRecommendation(context.Background(), "9700000000031", "9700000000048"); err != nil {
		t.Fatalf("CrawlRecommendation: %v", err)
	}
	if len(fr.calls) != 0 {
		t.Errorf("resolver called %d times for known ISBN", len(fr.calls))
	}
	if st.edges["9700000000048->9700000000031"] != 1 {
		t.Errorf("edges = %v", st.edges)
	}
	if c.Stats().DedupHits.Load() != 1 {
		t.Errorf("stats = %+v", c.Stats().Snapshot())
	}
}

func TestSharedRecommendationYieldsOneBookTwoEdges(t *testing.T) {
	cfg := testConfig()
	queryURL := search.QueryURL(cfg.Site.BaseURL, "9700000000055")

	fr := &fakeResolver{details: map[string]*types.BookDetail{
		queryURL: detail("9700000000055", "Shared", []string{"Jane Doe"}),
	}}
	st := newFakeStore()
	c := newTestCrawler(cfg, &fakeSearcher{}, fr, st)

	for _, parent := range []string{"9700000000062", "9700000000079"} {
		if err := c.CrawlRecommendation(context.Background(), "9700000000055", parent); err != nil {
			t.Fatalf("CrawlRecommendation(%s): %v", parent, err)
		}
	}
	if len(fr.calls) != 1 {
		t.Errorf("resolver calls = %d, want 1", len(fr.calls))
	}
	if st.edges["9700000000062->9700000000055"] != 1 || st.edges["9700000000079->9700000000055"] != 1 {
		t.Errorf("edges = %v", st.edges)
	}
}

func TestRecommendationFailureLeavesUnknownPlaceholderAndEdge(t *testing.T) {
	cfg := testConfig()
	queryURL := search.QueryURL(cfg.Site.BaseURL, "9700000000086")

	fr := &fakeResolver{errs: map[string]error{queryURL: errors.New("fetch exhausted")}}
	st := newFakeStore()

	if err := newTestCrawler(cfg, &fakeSearcher{}, fr, st).CrawlRecommendation(context.Background(), "9700000000086", "9700000000093"); err != nil {
		t.Fatalf("CrawlRecommendation: %v", err)
	}
	p := st.books["9700000000086"]
	if p == nil || p.Title != types.TitleUnknown || !p.IsPlaceholder() {
		t.Fatalf("placeholder = %+v", p)
	}
	if st.edges["9700000000093->9700000000086"] != 1 {
		t.Errorf("edges = %v", st.edges)
	}
}

func TestRecommendationAmbiguousISBNFallsBackToSearch(t *testing.T) {
	cfg := testConfig()
	queryURL := search.QueryURL(cfg.Site.BaseURL, "9700000000109")

	fs := &fakeSearcher{pages: map[string]string{
		queryURL: teaserPage(
			candidateJSON("Jane Doe", types.WorkBook, "/dk/ambiguous-hardback"),
			candidateJSON("Jane Doe", "E-bog", "/dk/ambiguous-ebook"),
		),
	}}
	fr := &fakeResolver{
		errs: map[string]error{queryURL: fmt.Errorf("%w: landed on results", types.ErrRedirected)},
		details: map[string]*types.BookDetail{
			cfg.Site.BaseURL + "/ambiguous-hardback": detail("9700000000109", "Ambiguous", []string{"Jane Doe"}),
		},
	}
	st := newFakeStore()

	if err := newTestCrawler(cfg, fs, fr, st).CrawlRecommendation(context.Background(), "9700000000109", "9700000000116"); err != nil {
		t.Fatalf("CrawlRecommendation: %v", err)
	}
	b := st.books["9700000000109"]
	if b == nil || b.Title != "Ambiguous" || b.Status != types.StatusResolved {
		t.Fatalf("book = %+v", b)
	}
}

func TestRecommendationKeepsSliderISBNOnMismatch(t *testing.T) {
	cfg := testConfig()
	queryURL := search.QueryURL(cfg.Site.BaseURL, "9700000000123")

	fr := &fakeResolver{details: map[string]*types.BookDetail{
		queryURL: detail("9700000000999", "Other Edition", []string{"Jane Doe"}),
	}}
	st := newFakeStore()

	if err := newTestCrawler(cfg, &fakeSearcher{}, fr, st).CrawlRecommendation(context.Background(), "9700000000123", "9700000000130"); err != nil {
		t.Fatalf("CrawlRecommendation: %v", err)
	}
	if _, ok := st.books["9700000000123"]; !ok {
		t.Fatal("book not stored under slider identifier")
	}
	if _, ok := st.books["9700000000999"]; ok {
		t.Error("book stored under page identifier")
	}
	if st.edges["9700000000130->9700000000123"] != 1 {
		t.Errorf("edges = %v", st.edges)
	}
}

func TestDepthCapLeavesPlaceholder(t *testing.T) {
	cfg := testConfig()
	cfg.Crawler.MaxDepth = 1

	fr := &fakeResolver{details: map[string]*types.BookDetail{
		search.QueryURL(cfg.Site.BaseURL, "9700000000147"): detail("9700000000147", "Level One", []string{"Jane Doe"}, "9700000000154"),
	}}
	st := newFakeStore()

	if err := newTestCrawler(cfg, &fakeSearcher{}, fr, st).CrawlRecommendation(context.Background(), "9700000000147", "9700000000161"); err != nil {
		t.Fatalf("CrawlRecommendation: %v", err)
	}
	if b := st.books["9700000000147"]; b == nil || b.Status != types.StatusResolved {
		t.Fatalf("level-one book = %+v", b)
	}
	deep := st.books["9700000000154"]
	if deep == nil || !deep.IsPlaceholder() || deep.Title != types.TitleUnknown {
		t.Fatalf("capped book = %+v", deep)
	}
	if st.edges["9700000000147->9700000000154"] != 1 {
		t.Errorf("edges = %v", st.edges)
	}
}

func TestCyclicRecommendationsTerminate(t *testing.T) {
	cfg := testConfig()
	fr := &fakeResolver{details: map[string]*types.BookDetail{
		search.QueryURL(cfg.Site.BaseURL, "9700000000178"): detail("9700000000178", "A", []string{"X"}, "9700000000185"),
		search.QueryURL(cfg.Site.BaseURL, "9700000000185"): detail("9700000000185", "B", []string{"X"}, "9700000000178"),
	}}
	st := newFakeStore()

	if err := newTestCrawler(cfg, &fakeSearcher{}, fr, st).CrawlRecommendation(context.Background(), "9700000000178", "9700000000192"); err != nil {
		t.Fatalf("CrawlRecommendation: %v", err)
	}
	if len(fr.calls) != 2 {
		t.Errorf("resolver calls = %d, want 2", len(fr.calls))
	}
	if st.edges["9700000000178->9700000000185"] != 1 || st.edges["9700000000185->9700000000178"] != 1 {
		t.Errorf("edges = %v", st.edges)
	}
}

func TestStoreReadFailureAborts(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	st.getErr = errors.New("connection refused")

	err := newTestCrawler(cfg, &fakeSearcher{}, &fakeResolver{}, st).CrawlRecommendation(context.Background(), "9700000000208", "9700000000215")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v", err)
	}
}

func TestRecrawlPlaceholdersUpgradesAndSkipsSeedSentinels(t *testing.T) {
	cfg := testConfig()
	st := newFakeStore()
	st.books["9700000000222"] = &types.Book{ISBN: "9700000000222", Title: types.TitleUnknown, Status: types.StatusPlaceholder}
	st.books["seed:5"] = &types.Book{ISBN: "seed:5", Title: types.TitleUnmatched, Status: types.StatusPlaceholder}

	fr := &fakeResolver{details: map[string]*types.BookDetail{
		search.QueryURL(cfg.Site.BaseURL, "9700000000222"): detail("9700000000222", "Recovered", []string{"Jane Doe"}),
	}}

	if err := newTestCrawler(cfg, &fakeSearcher{}, fr, st).RecrawlPlaceholders(context.Background()); err != nil {
		t.Fatalf("RecrawlPlaceholders: %v", err)
	}
	if b := st.books["9700000000222"]; b.Title != "Recovered" || b.Status != types.StatusResolved {
		t.Fatalf("book = %+v", b)
	}
	if b := st.books["seed:5"]; b.Title != types.TitleUnmatched {
		t.Errorf("seed sentinel touched: %+v", b)
	}
	for _, call := range fr.calls {
		if strings.Contains(call, "seed") {
			t.Errorf("resolver called for sentinel: %s", call)
		}
	}
}
