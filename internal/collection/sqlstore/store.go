// Package sqlstore serves a collection from a relational database. The same
// schema and queries run on PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS qlm_documents (
		doc_id  BIGINT PRIMARY KEY,
		content TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS qlm_terms (
		term            TEXT PRIMARY KEY,
		doc_freq        BIGINT NOT NULL,
		total_term_freq BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS qlm_meta (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Store implements collection.Index over the qlm_* tables.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var (
	_ collection.Index          = (*Store)(nil)
	_ collection.TermEnumerator = (*Store)(nil)
)

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "sqlstore", "dialect", dialect.Name),
	}
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, cfg config.SQLiteConfig) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	s := New(db, SQLite)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects with pkg/postgres and ensures the schema exists.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(db, Postgres)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Import replaces the stored collection with snap in one transaction.
func (s *Store) Import(ctx context.Context, snap collection.Snapshot) error {
	start := time.Now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"qlm_documents", "qlm_terms", "qlm_meta"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		docStmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`INSERT INTO qlm_documents (doc_id, content) VALUES (?, ?)`))
		if err != nil {
			return fmt.Errorf("preparing document insert: %w", err)
		}
		defer docStmt.Close()
		for docID, content := range snap.Documents {
			if _, err := docStmt.ExecContext(ctx, int64(docID), content); err != nil {
				return fmt.Errorf("inserting document %d: %w", docID, err)
			}
		}
		termStmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`INSERT INTO qlm_terms (term, doc_freq, total_term_freq) VALUES (?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("preparing term insert: %w", err)
		}
		defer termStmt.Close()
		for _, e := range snap.Terms {
			if _, err := termStmt.ExecContext(ctx, e.Term, int64(e.DocFreq), int64(e.TotalTermFreq)); err != nil {
				return fmt.Errorf("inserting term %q: %w", e.Term, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO qlm_meta (name, value) VALUES (?, ?)`), "analyzer", snap.Analyzer); err != nil {
			return fmt.Errorf("writing analyzer name: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("collection imported",
		"documents", len(snap.Documents),
		"terms", len(snap.Terms),
		"duration", time.Since(start),
	)
	return nil
}

func (s *Store) NumDocs(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qlm_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return uint64(n), nil
}

func (s *Store) DocumentContent(ctx context.Context, docID uint64) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT content FROM qlm_documents WHERE doc_id = ?`), int64(docID)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.Newf(apperrors.ErrDocumentNotFound, "doc %d", docID)
	}
	if err != nil {
		return "", fmt.Errorf("reading document %d: %w", docID, err)
	}
	return content, nil
}

func (s *Store) DocFreq(ctx context.Context, term string) (uint64, error) {
	return s.termCount(ctx, "doc_freq", term)
}

func (s *Store) TotalTermFreq(ctx context.Context, term string) (uint64, error) {
	return s.termCount(ctx, "total_term_freq", term)
}

func (s *Store) Terms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT term FROM qlm_terms ORDER BY term`)
	if err != nil {
		return nil, fmt.Errorf("listing terms: %w", err)
	}
	defer rows.Close()
	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// Analyzer returns the analyzer name recorded at import, or "" if the store
// has never been imported into.
func (s *Store) Analyzer(ctx context.Context) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT value FROM qlm_meta WHERE name = ?`), "analyzer").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading analyzer name: %w", err)
	}
	return name, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// termCount reads one of the two fixed count columns of qlm_terms.
func (s *Store) termCount(ctx context.Context, column string, term string) (uint64, error) {
	var n int64
	query := s.dialect.rebind(`SELECT ` + column + ` FROM qlm_terms WHERE term = ?`)
	err := s.db.QueryRowContext(ctx, query, term).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s for %q: %w", column, term, err)
	}
	return uint64(n), nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
