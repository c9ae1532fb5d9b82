package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"bookgraph/internal/normalize"
	"bookgraph/internal/types"
)

// SQLiteStore is the default, single-file graph store backend.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS book (
		isbn              TEXT PRIMARY KEY,
		title             TEXT NOT NULL,
		page_count        INTEGER NOT NULL DEFAULT 0,
		published_date    TEXT NOT NULL DEFAULT '',
		publisher         TEXT NOT NULL DEFAULT '',
		format            TEXT NOT NULL DEFAULT '',
		edition           TEXT NOT NULL DEFAULT '',
		language          TEXT NOT NULL DEFAULT '',
		original_language TEXT NOT NULL DEFAULT '',
		rating            REAL NOT NULL DEFAULT 0,
		rating_count      INTEGER NOT NULL DEFAULT 0,
		description       TEXT NOT NULL DEFAULT '',
		top10k            INTEGER NOT NULL DEFAULT 0,
		status            TEXT NOT NULL DEFAULT 'placeholder'
	)`,
	`CREATE TABLE IF NOT EXISTS author (
		name         TEXT PRIMARY KEY,
		display_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS book_author (
		book_isbn   TEXT NOT NULL REFERENCES book(isbn),
		author_name TEXT NOT NULL REFERENCES author(name),
		position    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (book_isbn, author_name)
	)`,
	`CREATE TABLE IF NOT EXISTS recommendation (
		book_isbn        TEXT NOT NULL REFERENCES book(isbn),
		recommended_isbn TEXT NOT NULL REFERENCES book(isbn),
		PRIMARY KEY (book_isbn, recommended_isbn)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_book_status ON book(status)`,
	`CREATE INDEX IF NOT EXISTS idx_recommendation_target ON recommendation(recommended_isbn)`,
}

// OpenSQLite opens (creating if needed) the sqlite graph store.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma foreign_keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "sqlite_store"),
	}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// The upsert refuses to replace a resolved row with anything but another
// resolved record, and keeps an existing nonzero rank.
const sqliteUpsertBook = `
INSERT INTO book (isbn, title, page_count, published_date, publisher, format,
                  edition, language, original_language, rating, rating_count,
                  description, top10k, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(isbn) DO UPDATE SET
	title             = excluded.title,
	page_count        = excluded.page_count,
	published_date    = excluded.published_date,
	publisher         = excluded.publisher,
	format            = excluded.format,
	edition           = excluded.edition,
	language          = excluded.language,
	original_language = excluded.original_language,
	rating            = excluded.rating,
	rating_count      = excluded.rating_count,
	description       = excluded.description,
	top10k            = CASE WHEN book.top10k = 0 THEN excluded.top10k ELSE book.top10k END,
	status            = excluded.status
WHERE book.status = 'placeholder'`

func (s *SQLiteStore) SaveBook(ctx context.Context, detail *types.BookDetail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "save_book", Err: err}
	}
	defer tx.Rollback()

	b := &detail.Book
	if _, err := tx.ExecContext(ctx, sqliteUpsertBook,
		b.ISBN, b.Title, b.PageCount, b.PublishedDate, b.Publisher, b.Format,
		b.Edition, b.Language, b.OriginalLanguage, b.Rating, b.RatingCount,
		b.Description, b.Rank, string(b.Status),
	); err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "upsert_book", Err: err}
	}

	for i, name := range detail.Authors {
		key := normalize.AuthorKey(name)
		if key == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO author (name, display_name) VALUES (?, ?)
			 ON CONFLICT(name) DO NOTHING`, key, name); err != nil {
			return &types.StoreError{Backend: s.Name(), Op: "upsert_author", Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO book_author (book_isbn, author_name, position) VALUES (?, ?, ?)
			 ON CONFLICT(book_isbn, author_name) DO NOTHING`, b.ISBN, key, i); err != nil {
			return &types.StoreError{Backend: s.Name(), Op: "link_author", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "commit", Err: err}
	}
	return nil
}

func (s *SQLiteStore) GetBook(ctx context.Context, isbn string) (*types.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT isbn, title, page_count, published_date, publisher, format,
		       edition, language, original_language, rating, rating_count,
		       description, top10k, status
		FROM book WHERE isbn = ?`, isbn)

	var b types.Book
	var status string
	err := row.Scan(&b.ISBN, &b.Title, &b.PageCount, &b.PublishedDate, &b.Publisher,
		&b.Format, &b.Edition, &b.Language, &b.OriginalLanguage, &b.Rating,
		&b.RatingCount, &b.Description, &b.Rank, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrBookNotFound
	}
	if err != nil {
		return nil, &types.StoreError{Backend: s.Name(), Op: "get_book", Err: err}
	}
	b.Status = types.ResolutionStatus(status)
	return &b, nil
}

func (s *SQLiteStore) UpgradeRank(ctx context.Context, isbn string, rank int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE book SET top10k = ? WHERE isbn = ? AND top10k = 0`, rank, isbn)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "upgrade_rank", Err: err}
	}
	return nil
}

func (s *SQLiteStore) LinkRecommendation(ctx context.Context, sourceISBN, targetISBN string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recommendation (book_isbn, recommended_isbn) VALUES (?, ?)
		 ON CONFLICT(book_isbn, recommended_isbn) DO NOTHING`, sourceISBN, targetISBN)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "link_recommendation", Err: err}
	}
	return nil
}

func (s *SQLiteStore) BookAuthors(ctx context.Context, isbn string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.display_name
		FROM book_author ba JOIN author a ON a.name = ba.author_name
		WHERE ba.book_isbn = ?
		ORDER BY ba.position`, isbn)
	if err != nil {
		return nil, &types.StoreError{Backend: s.Name(), Op: "book_authors", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &types.StoreError{Backend: s.Name(), Op: "book_authors", Err: err}
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) ListPlaceholders(ctx context.Context) ([]types.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT isbn, title, top10k FROM book WHERE status = ? ORDER BY isbn`,
		string(types.StatusPlaceholder))
	if err != nil {
		return nil, &types.StoreError{Backend: s.Name(), Op: "list_placeholders", Err: err}
	}
	defer rows.Close()

	var books []types.Book
	for rows.Next() {
		b := types.Book{Status: types.StatusPlaceholder}
		if err := rows.Scan(&b.ISBN, &b.Title, &b.Rank); err != nil {
			return nil, &types.StoreError{Backend: s.Name(), Op: "list_placeholders", Err: err}
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
