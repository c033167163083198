// Package postgres is the multi-process-safe backend for session metadata:
// the same row-per-session shape as internal/sessionstore/sqlite, but
// backed by Postgres so several agentcored processes can share one
// session/message store and rely on row-level locking — rather than an
// in-process mutex — to keep Run Manager's single-flight-per-session
// guarantee true across a fleet.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/forgewright/agentcore/pkg/models"
)

// ErrNotFound is returned when a session id has no matching row.
var ErrNotFound = errors.New("sessionstore: session not found")

// Store persists session metadata in Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at dsn and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
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
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
	`)
	return err
}

// Close closes the underlying connection pool.
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.Title, session.WorkingDir, string(session.Visibility), meta,
		session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sessionstore: insert: %w", err)
	}
	return nil
}

// Get fetches one session by id, including soft-deleted ones.
func (s *Store) Get(ctx context.Context, id string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, working_dir, visibility, metadata, created_at, updated_at, deleted_at
		FROM sessions WHERE id = $1
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

// GetForUpdate fetches one session with a row-level lock held for the
// duration of the caller's transaction, the cross-process analogue of the
// in-memory mutex runmanager.Manager uses to serialize starts for a single
// session: two agentcored processes racing to start the same session both
// reach this query, and the second blocks until the first's transaction
// commits or rolls back.
func (s *Store) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (models.Session, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, title, working_dir, visibility, metadata, created_at, updated_at, deleted_at
		FROM sessions WHERE id = $1 FOR UPDATE
	`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("sessionstore: get for update: %w", err)
	}
	return session, nil
}

// BeginTx starts a transaction for use with GetForUpdate.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
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
	query += ` ORDER BY updated_at DESC LIMIT $1 OFFSET $2`

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
		UPDATE sessions SET title = $1, visibility = $2, metadata = $3, updated_at = $4 WHERE id = $5
	`, current.Title, string(current.Visibility), meta, current.UpdatedAt.UTC(), id)
	if err != nil {
		return models.Session{}, fmt.Errorf("sessionstore: update: %w", err)
	}
	return current, nil
}

// SoftDelete marks a session deleted without removing its row.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`, now, id)
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
	var visibility string
	var metadata []byte
	var deletedAt sql.NullTime

	if err := row.Scan(&session.ID, &session.Title, &session.WorkingDir, &visibility, &metadata,
		&session.CreatedAt, &session.UpdatedAt, &deletedAt); err != nil {
		return models.Session{}, err
	}

	session.Visibility = models.Visibility(visibility)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
			return models.Session{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		session.DeletedAt = &t
	}
	return session, nil
}
