package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"bookgraph/internal/normalize"
	"bookgraph/internal/types"
)

// PostgresStore backs the graph with PostgreSQL, for crawls whose output
// is consumed by other services.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var postgresSchema = []string{
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
		rating            DOUBLE PRECISION NOT NULL DEFAULT 0,
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

// OpenPostgres connects to PostgreSQL and bootstraps the schema.
func OpenPostgres(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &PostgresStore{
		db:     db,
		logger: logger.With("component", "postgres_store"),
	}, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

const postgresUpsertBook = `
INSERT INTO book (isbn, title, page_count, published_date, publisher, format,
                  edition, language, original_language, rating, rating_count,
                  description, top10k, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (isbn) DO UPDATE SET
	title             = EXCLUDED.title,
	page_count        = EXCLUDED.page_count,
	published_date    = EXCLUDED.published_date,
	publisher         = EXCLUDED.publisher,
	format            = EXCLUDED.format,
	edition           = EXCLUDED.edition,
	language          = EXCLUDED.language,
	original_language = EXCLUDED.original_language,
	rating            = EXCLUDED.rating,
	rating_count      = EXCLUDED.rating_count,
	description       = EXCLUDED.description,
	top10k            = CASE WHEN book.top10k = 0 THEN EXCLUDED.top10k ELSE book.top10k END,
	status            = EXCLUDED.status
WHERE book.status = 'placeholder'`

func (s *PostgresStore) SaveBook(ctx context.Context, detail *types.BookDetail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "save_book", Err: err}
	}
	defer tx.Rollback()

	b := &detail.Book
	if _, err := tx.ExecContext(ctx, postgresUpsertBook,
		b.ISBN, b.Title, b.PageCount, b.PublishedDate, b.Publisher, b.Format,
		b.Edition, b.Language, b.OriginalLanguage, b.Rating, b.RatingCount,
		b.Description, b.Rank, string(b.Status),
	); err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "upsert_book", Err: err}
	}

	authorStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO author (name, display_name) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "prepare", Err: err}
	}
	defer authorStmt.Close()

	linkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO book_author (book_isbn, author_name, position) VALUES ($1, $2, $3)
		 ON CONFLICT (book_isbn, author_name) DO NOTHING`)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "prepare", Err: err}
	}
	defer linkStmt.Close()

	for i, name := range detail.Authors {
		key := normalize.AuthorKey(name)
		if key == "" {
			continue
		}
		if _, err := authorStmt.ExecContext(ctx, key, name); err != nil {
			return &types.StoreError{Backend: s.Name(), Op: "upsert_author", Err: err}
		}
		if _, err := linkStmt.ExecContext(ctx, b.ISBN, key, i); err != nil {
			return &types.StoreError{Backend: s.Name(), Op: "link_author", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "commit", Err: err}
	}
	return nil
}

func (s *PostgresStore) GetBook(ctx context.Context, isbn string) (*types.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT isbn, title, page_count, published_date, publisher, format,
		       edition, language, original_language, rating, rating_count,
		       description, top10k, status
		FROM book WHERE isbn = $1`, isbn)

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

func (s *PostgresStore) UpgradeRank(ctx context.Context, isbn string, rank int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE book SET top10k = $1 WHERE isbn = $2 AND top10k = 0`, rank, isbn)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "upgrade_rank", Err: err}
	}
	return nil
}

func (s *PostgresStore) LinkRecommendation(ctx context.Context, sourceISBN, targetISBN string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recommendation (book_isbn, recommended_isbn) VALUES ($1, $2)
		 ON CONFLICT (book_isbn, recommended_isbn) DO NOTHING`, sourceISBN, targetISBN)
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "link_recommendation", Err: err}
	}
	return nil
}

func (s *PostgresStore) BookAuthors(ctx context.Context, isbn string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.display_name
		FROM book_author ba JOIN author a ON a.name = ba.author_name
		WHERE ba.book_isbn = $1
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

func (s *PostgresStore) ListPlaceholders(ctx context.Context) ([]types.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT isbn, title, top10k FROM book WHERE status = $1 ORDER BY isbn`,
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
