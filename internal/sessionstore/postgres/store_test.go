package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/agentcore/pkg/models"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func newSession(title string) models.Session {
	now := time.Now()
	return models.Session{
		ID:         uuid.NewString(),
		Title:      title,
		WorkingDir: "/tmp/work",
		Visibility: models.VisibilityPrivate,
		Metadata:   map[string]any{"origin": "test"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateInsertsRow(t *testing.T) {
	store, mock := setupMockStore(t)
	session := newSession("t1")

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(session.ID, session.Title, session.WorkingDir, string(session.Visibility),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), session))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT .* FROM sessions WHERE id").
		WithArgs("nonexistent").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetScansRow(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "title", "working_dir", "visibility", "metadata", "created_at", "updated_at", "deleted_at"}).
		AddRow("session-1", "hello", "/tmp", "private", []byte(`{"origin":"test"}`), now, now, nil)
	mock.ExpectQuery("SELECT .* FROM sessions WHERE id").
		WithArgs("session-1").
		WillReturnRows(rows)

	session, err := store.Get(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", session.Title)
	assert.Equal(t, "test", session.Metadata["origin"])
	assert.Nil(t, session.DeletedAt)
}

func TestSoftDeleteMissingReturnsNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE sessions SET deleted_at").
		WithArgs(sqlmock.AnyArg(), "nonexistent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SoftDelete(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetForUpdateUsesRowLock(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "title", "working_dir", "visibility", "metadata", "created_at", "updated_at", "deleted_at"}).
		AddRow("session-1", "hello", "/tmp", "private", []byte(`{}`), now, now, nil)
	mock.ExpectQuery("SELECT .* FROM sessions WHERE id .* FOR UPDATE").
		WithArgs("session-1").
		WillReturnRows(rows)

	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	session, err := store.GetForUpdate(context.Background(), tx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.ID)
}
