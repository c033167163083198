// Package sqlite is the default single-node backend for session metadata:
// one row per session, soft-deleted rather than removed so history stays
// attributable. Message history itself lives in checkpoint snapshots, not
// here.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forgewright/agentcore/pkg/models"
)

// ErrNotFound is returned when a session id has no matching row.
var ErrNotFound = errors.New("sessionstore: session not found")

// Store persists session metadata in a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists. An empty path opens a private in-memory database, for
// tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1) // a private in-memory db only exists on one connection
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			working_dir TEXT NOT NULL DEFAULT '',
			visibility TEXT NOT NULL DEFAULT 'private',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new session row. ID, CreatedAt, and UpdatedAt are
// assigned by the caller before persisting.
func (s *Store) Create(ctx context.Context, session models.Session) error {
	meta, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, working_dir, visibility, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.Title, session.WorkingDir, string(session.Visibility), string(meta),
		session.CreatedAt.UTC().Format(time.RFC3339Nano), session.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sessionstore: insert: %w", err)
	}
	return nil
}

// Get fetches one session by id, including soft-deleted ones.
func (s *Store) Get(ctx context.Context, id string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, working_dir, visibility, metadata, created_at, updated_at, deleted_at
		FROM sessions WHERE id = ?
	`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("sessionstore: get: %w", err)
	}
	return session, nil
}

// ListOptions filters and paginates List.
type ListOptions struct {
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// List returns sessions ordered by most recently updated.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.Session, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT id, title, working_dir, visibility, metadata, created_at, updated_at, deleted_at FROM sessions`
	if !opts.IncludeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: scan: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// Update applies a partial patch to a session's title/visibility/metadata
// and bumps updated_at.
type Update struct {
	Title      *string
	Visibility *models.Visibility
	Metadata   map[string]any
}

func (s *Store) Update(ctx context.Context, id string, patch Update) (models.Session, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return models.Session{}, err
	}
	if patch.Title != nil {
		current.Title = *patch.Title
	}
	if patch.Visibility != nil {
		current.Visibility = *patch.Visibility
	}
	if patch.Metadata != nil {
		current.Metadata = patch.Metadata
	}
	current.UpdatedAt = time.Now()

	meta, err := json.Marshal(current.Metadata)
	if err != nil {
		return models.Session{}, fmt.Errorf("sessionstore: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET title = ?, visibility = ?, metadata = ?, updated_at = ? WHERE id = ?
	`, current.Title, string(current.Visibility), string(meta), current.UpdatedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return models.Session{}, fmt.Errorf("sessionstore: update: %w", err)
	}
	return current, nil
}

// SoftDelete marks a session deleted without removing its row.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return fmt.Errorf("sessionstore: soft delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessionstore: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (models.Session, error) {
	var session models.Session
	var visibility, metadata string
	var createdAt, updatedAt string
	var deletedAt sql.NullString

	if err := row.Scan(&session.ID, &session.Title, &session.WorkingDir, &visibility, &metadata, &createdAt, &updatedAt, &deletedAt); err != nil {
		return models.Session{}, err
	}

	session.Visibility = models.Visibility(visibility)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &session.Metadata); err != nil {
			return models.Session{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	var err error
	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.Session{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, deletedAt.String)
		if err != nil {
			return models.Session{}, fmt.Errorf("parse deleted_at: %w", err)
		}
		session.DeletedAt = &t
	}
	return session, nil
}
