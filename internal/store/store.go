// Package store persists the book/recommendation graph. Every operation
// is individually idempotent so retried crawls stay correct.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bookgraph/internal/config"
	"bookgraph/internal/types"
)

// GraphStore is the interface all graph store backends implement.
//
// ISBN uniqueness and normalized-author-name uniqueness are guaranteed at
// the storage layer, not just checked in application code.
type GraphStore interface {
	// GetBook returns the book for an ISBN, or types.ErrBookNotFound.
	GetBook(ctx context.Context, isbn string) (*types.Book, error)

	// SaveBook persists a book with its authors as one unit: on any
	// failure partway nothing is persisted. Saving a placeholder over a
	// resolved row is a no-op; saving a resolved record over a
	// placeholder upgrades it. An existing nonzero rank is never
	// overwritten with zero.
	SaveBook(ctx context.Context, detail *types.BookDetail) error

	// UpgradeRank sets the rank of a book whose current rank is zero.
	// Books that already carry a rank keep it.
	UpgradeRank(ctx context.Context, isbn string, rank int) error

	// LinkRecommendation records the directed edge source -> target.
	// Re-linking is a no-op; self-loops are stored like any other edge.
	LinkRecommendation(ctx context.Context, sourceISBN, targetISBN string) error

	// BookAuthors returns the display names of a book's authors in
	// their original order.
	BookAuthors(ctx context.Context, isbn string) ([]string, error)

	// ListPlaceholders returns all unresolved books, for re-crawl passes.
	ListPlaceholders(ctx context.Context) ([]types.Book, error)

	// Close releases the backend's resources.
	Close() error
}

// Open constructs the backend selected by the configuration.
func Open(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (GraphStore, error) {
	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return OpenSQLite(cfg.Path, logger)
	case "postgres":
		return OpenPostgres(cfg.DSN, logger)
	case "mongo":
		return OpenMongo(ctx, cfg.URI, cfg.Database, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
