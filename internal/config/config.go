package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for bookgraph.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"    yaml:"site"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Crawler CrawlerConfig `mapstructure:"crawler" yaml:"crawler"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SiteConfig pins the crawler to one bookstore's page structure.
type SiteConfig struct {
	// BaseURL is the store root, locale path included.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// DetailReadySelector is the element whose presence marks a detail
	// page as fully rendered (the recommendation slider loads last).
	DetailReadySelector string `mapstructure:"detail_ready_selector" yaml:"detail_ready_selector"`

	// RedirectMarker is the substring whose presence in a fetch's final
	// URL means the site bounced us to a search/disambiguation page.
	RedirectMarker string `mapstructure:"redirect_marker" yaml:"redirect_marker"`
}

// FetcherConfig controls page fetching.
type FetcherConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`

	// RatePerSecond and RateBurst feed the token-bucket limiter shared
	// by all fetchers. The crawl is sequential; the limiter is a second
	// line of defense against hammering the site during recursion.
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"      yaml:"rate_burst"`

	// Stealth applies anti-automation patches to browser pages.
	Stealth bool `mapstructure:"stealth" yaml:"stealth"`
}

// CrawlerConfig controls the recursive graph walk.
type CrawlerConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// MaxDepth caps recommendation recursion; 0 means unbounded, relying
	// solely on the visited-ISBN check to terminate.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`

	// DelayMin/DelayMax bound the randomized politeness pause inserted
	// after each book's processing.
	DelayMin time.Duration `mapstructure:"delay_min" yaml:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max" yaml:"delay_max"`
}

// StorageConfig selects and configures the graph store backend.
type StorageConfig struct {
	// Type is one of: sqlite, postgres, mongo.
	Type string `mapstructure:"type" yaml:"type"`

	// Path is the sqlite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// DSN is the postgres connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// URI and Database configure the mongo backend.
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:             "https://www.saxo.com/dk",
			DetailReadySelector: ".book-slick-slider",
			RedirectMarker:      "query",
		},
		Fetcher: FetcherConfig{
			RequestTimeout:  20 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    10,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			RatePerSecond: 1,
			RateBurst:     1,
		},
		Crawler: CrawlerConfig{
			MaxRetries: 2,
			RetryDelay: 2 * time.Second,
			MaxDepth:   0,
			DelayMin:   1 * time.Second,
			DelayMax:   3 * time.Second,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: "./bookgraph.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
