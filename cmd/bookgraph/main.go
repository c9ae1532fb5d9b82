package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bookgraph/internal/config"
	"bookgraph/internal/crawler"
	"bookgraph/internal/extract"
	"bookgraph/internal/fetcher"
	"bookgraph/internal/resolve"
	"bookgraph/internal/seeds"
	"bookgraph/internal/store"
)

var (
	cfgFile     string
	verbose     bool
	storageType string
	storagePath string
	maxDepth    int
	maxSeeds    int
	utf8Seeds   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bookgraph",
		Short: "bookgraph — recommendation-graph crawler for an online bookstore",
		Long: `bookgraph crawls an online bookstore and builds a persistent graph of
books, authors, and recommendation edges, keyed by ISBN.

Seeds come from a ranked CSV; each seed is resolved via the store's
search, its detail page is rendered in a headless browser, and every
recommendation on the page is followed recursively. Books already in
the store are never fetched twice, and failures degrade to placeholder
nodes so a later run can pick up where this one left off.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(recrawlCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-csv]",
		Short: "Crawl the store starting from a ranked seed list",
		Long: "Read seeds (book_title, book_author columns; rank = row order) from the\n" +
			"given CSV and crawl each one, expanding its recommendation graph.",
		Args: cobra.ExactArgs(1),
		RunE: runCrawl,
	}

	cmd.Flags().StringVar(&storageType, "storage", "", "graph store backend: sqlite, postgres, mongo")
	cmd.Flags().StringVar(&storagePath, "db", "", "sqlite database file")
	cmd.Flags().IntVarP(&maxDepth, "depth", "d", -1, "max recommendation recursion depth (-1 = use config, 0 = unbounded)")
	cmd.Flags().IntVarP(&maxSeeds, "max-seeds", "m", 0, "stop after this many seeds (0 = all)")
	cmd.Flags().BoolVar(&utf8Seeds, "utf8", false, "seed CSV is UTF-8 instead of Windows-1250")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger = loggerFromConfig(cfg)

	seedList, err := seeds.ReadFile(args[0], utf8Seeds)
	if err != nil {
		return err
	}
	if maxSeeds > 0 && maxSeeds < len(seedList) {
		seedList = seedList[:maxSeeds]
	}
	if len(seedList) == 0 {
		return fmt.Errorf("seed file %s contains no usable rows", args[0])
	}

	logger.Info("starting crawl",
		"seeds", len(seedList),
		"site", cfg.Site.BaseURL,
		"storage", cfg.Storage.Type,
		"max_depth", cfg.Crawler.MaxDepth,
	)

	ctx, cancel := signalContext(logger)
	defer cancel()

	c, cleanup, err := buildCrawler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	for i, seed := range seedList {
		if ctx.Err() != nil {
			logger.Info("crawl interrupted", "completed_seeds", i)
			break
		}
		if err := c.CrawlSeed(ctx, seed); err != nil {
			if ctx.Err() != nil {
				logger.Info("crawl interrupted", "completed_seeds", i)
				break
			}
			// Per-book failures are absorbed inside the crawler; an error
			// here means the store itself is gone.
			return fmt.Errorf("crawl aborted at seed %d (%s): %w", seed.Rank, seed.Title, err)
		}
	}

	printStats(c.Stats().Snapshot(), time.Since(start))
	return nil
}

// recrawlCmd creates the "recrawl" subcommand.
func recrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recrawl",
		Short: "Re-attempt resolution of placeholder books",
		Long: "Walk every placeholder node in the graph store and retry its detail\n" +
			"resolution, expanding recommendations for each one that now resolves.",
		Args: cobra.NoArgs,
		RunE: runRecrawl,
	}

	cmd.Flags().StringVar(&storageType, "storage", "", "graph store backend: sqlite, postgres, mongo")
	cmd.Flags().StringVar(&storagePath, "db", "", "sqlite database file")
	cmd.Flags().IntVarP(&maxDepth, "depth", "d", -1, "max recommendation recursion depth (-1 = use config, 0 = unbounded)")

	return cmd
}

// runRecrawl executes the recrawl command.
func runRecrawl(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger = loggerFromConfig(cfg)

	ctx, cancel := signalContext(logger)
	defer cancel()

	c, cleanup, err := buildCrawler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	if err := c.RecrawlPlaceholders(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("recrawl aborted: %w", err)
	}
	printStats(c.Stats().Snapshot(), time.Since(start))
	return nil
}

// buildCrawler wires the fetchers, resolver, and store into a Crawler.
// The returned cleanup closes everything in reverse order.
func buildCrawler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*crawler.Crawler, func(), error) {
	limiter := fetcher.NewLimiter(cfg.Fetcher.RatePerSecond, cfg.Fetcher.RateBurst)

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, limiter, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create http fetcher: %w", err)
	}

	browserFetcher, err := fetcher.NewBrowserFetcher(cfg, limiter, logger)
	if err != nil {
		httpFetcher.Close()
		return nil, nil, fmt.Errorf("create browser fetcher: %w", err)
	}

	graphStore, err := store.Open(ctx, &cfg.Storage, logger)
	if err != nil {
		browserFetcher.Close()
		httpFetcher.Close()
		return nil, nil, fmt.Errorf("open graph store: %w", err)
	}

	resolver := resolve.New(browserFetcher, extract.New(logger), cfg, logger)
	c := crawler.New(cfg, httpFetcher, resolver, graphStore, logger)

	cleanup := func() {
		if err := graphStore.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
		browserFetcher.Close()
		httpFetcher.Close()
	}
	return c, cleanup, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, finishing current book...", "signal", sig)
		cancel()
	}()
	return ctx, cancel
}

func printStats(s crawler.Snapshot, elapsed time.Duration) {
	fmt.Printf("\nCrawl finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Seeds:         %d crawled\n", s.SeedsCrawled)
	fmt.Printf("   Books:         %d persisted, %d already known\n", s.BooksPersisted, s.DedupHits)
	fmt.Printf("   Edges:         %d linked\n", s.EdgesLinked)
	fmt.Printf("   Placeholders:  %d created\n", s.PlaceholdersCreated)
	fmt.Printf("   Ranks:         %d upgraded\n", s.RankUpgrades)
	fmt.Printf("   Failures:      %d fetch/resolve\n", s.FetchFailures)
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			applyCLIOverrides(cfg)
			fmt.Printf("Site:\n")
			fmt.Printf("  Base URL:          %s\n", cfg.Site.BaseURL)
			fmt.Printf("  Ready Selector:    %s\n", cfg.Site.DetailReadySelector)
			fmt.Printf("  Redirect Marker:   %s\n", cfg.Site.RedirectMarker)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Rate:              %.2f req/s (burst %d)\n", cfg.Fetcher.RatePerSecond, cfg.Fetcher.RateBurst)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("  Stealth:           %v\n", cfg.Fetcher.Stealth)
			fmt.Printf("\nCrawler:\n")
			fmt.Printf("  Max Retries:       %d\n", cfg.Crawler.MaxRetries)
			fmt.Printf("  Retry Delay:       %s\n", cfg.Crawler.RetryDelay)
			fmt.Printf("  Max Depth:         %d (0 = unbounded)\n", cfg.Crawler.MaxDepth)
			fmt.Printf("  Politeness Delay:  %s – %s\n", cfg.Crawler.DelayMin, cfg.Crawler.DelayMax)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			switch strings.ToLower(cfg.Storage.Type) {
			case "sqlite":
				fmt.Printf("  Path:              %s\n", cfg.Storage.Path)
			case "postgres":
				fmt.Printf("  DSN:               %s\n", cfg.Storage.DSN)
			case "mongo":
				fmt.Printf("  URI:               %s\n", cfg.Storage.URI)
				fmt.Printf("  Database:          %s\n", cfg.Storage.Database)
			}
			return nil
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bookgraph %s\n", config.Version)
		},
	}
}

// applyCLIOverrides applies command-line flag overrides to the config.
func applyCLIOverrides(cfg *config.Config) {
	if storageType != "" {
		cfg.Storage.Type = storageType
	}
	if storagePath != "" {
		cfg.Storage.Path = storagePath
	}
	if maxDepth >= 0 {
		cfg.Crawler.MaxDepth = maxDepth
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// setupLogger creates the bootstrap slog logger from flags, so config
// load errors themselves get logged consistently.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loggerFromConfig rebuilds the logger once configuration is loaded.
func loggerFromConfig(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out *os.File
	switch cfg.Logging.Output {
	case "stdout":
		out = os.Stdout
	default:
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
