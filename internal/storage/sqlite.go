package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteFileName = "vimflowy.sqlite"

// SQLiteBackend stores documents in a single SQLite table.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens <folder>/vimflowy.sqlite, or a private in-memory
// database when folder is empty.
func NewSQLiteBackend(folder string) (*SQLiteBackend, error) {
	dsn := ":memory:"
	if folder != "" {
		dsn = filepath.Join(folder, sqliteFileName)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if folder == "" {
		// every pooled connection to :memory: would see its own database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			document TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (document, key)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, doc, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM documents WHERE document = ? AND key = ?",
		doc, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query error: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, doc, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (document, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(document, key) DO UPDATE SET value = excluded.value
	`, doc, key, value)
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
