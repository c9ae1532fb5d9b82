package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a loaded configuration for contradictions that would
// only surface mid-crawl.
func Validate(cfg *Config) error {
	if cfg.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	u, err := url.Parse(cfg.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url %q is not an absolute URL", cfg.Site.BaseURL)
	}
	if cfg.Site.DetailReadySelector == "" {
		return fmt.Errorf("site.detail_ready_selector is required")
	}

	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be positive")
	}
	if cfg.Fetcher.RatePerSecond <= 0 {
		return fmt.Errorf("fetcher.rate_per_second must be positive")
	}
	if cfg.Fetcher.RateBurst < 1 {
		return fmt.Errorf("fetcher.rate_burst must be at least 1")
	}

	if cfg.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must not be negative")
	}
	if cfg.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must not be negative")
	}
	if cfg.Crawler.DelayMin < 0 || cfg.Crawler.DelayMax < cfg.Crawler.DelayMin {
		return fmt.Errorf("crawler delays must satisfy 0 <= delay_min <= delay_max")
	}

	switch strings.ToLower(cfg.Storage.Type) {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case "mongo":
		if cfg.Storage.URI == "" || cfg.Storage.Database == "" {
			return fmt.Errorf("storage.uri and storage.database are required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown storage.type %q (want sqlite, postgres, or mongo)", cfg.Storage.Type)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", cfg.Logging.Level)
	}

	return nil
}
