// Package sqlite implements store.Store on a single SQLite documents table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/foxzi/clientdesk/internal/store"
)

// Store is a SQLite backed document store
type Store struct {
	db *sql.DB
}

// Open opens the database and applies migrations
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// In-memory databases are per connection
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema
func (s *Store) Migrate() error {
	migrations := []string{
		migrationDocuments,
		migrationDocumentsOwnerIndex,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const migrationDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    owner_id TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (collection, id)
);
`

const migrationDocumentsOwnerIndex = `
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(collection, owner_id, created_at);
`

// All returns documents of a collection, optionally limited to one owner
func (s *Store) All(ctx context.Context, collection, ownerID string) ([]store.Document, error) {
	if collection == "" {
		return nil, store.ErrInvalidCollection
	}

	query := `SELECT id, owner_id, data, created_at, updated_at FROM documents WHERE collection = ?`
	args := []any{collection}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Get returns a document by id
func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	if collection == "" {
		return nil, store.ErrInvalidCollection
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Create stores a new document
func (s *Store) Create(ctx context.Context, collection, ownerID, id string, data []byte) (string, error) {
	if collection == "" {
		return "", store.ErrInvalidCollection
	}
	if id == "" {
		id = store.NewID()
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, owner_id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		collection, id, ownerID, string(data), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", store.ErrExists
		}
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

// Update merges partial fields into a document
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if collection == "" {
		return store.ErrInvalidCollection
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	merged, err := store.Merge([]byte(data), partial)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(merged), time.Now().UTC(), collection, id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	return tx.Commit()
}

// Delete removes a document
func (s *Store) Delete(ctx context.Context, collection, id, ownerID string) error {
	if collection == "" {
		return store.ErrInvalidCollection
	}

	query := `DELETE FROM documents WHERE collection = ? AND id = ?`
	args := []any{collection, id}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*store.Document, error) {
	var (
		doc  store.Document
		data string
	)
	if err := row.Scan(&doc.ID, &doc.OwnerID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Data = []byte(data)
	return &doc, nil
}
