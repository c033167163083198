package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/agentcore/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
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

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	session := newSession("t1")

	require.NoError(t, store.Create(context.Background(), session))

	got, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Title, got.Title)
	assert.Equal(t, session.WorkingDir, got.WorkingDir)
	assert.Equal(t, "test", got.Metadata["origin"])
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersByUpdatedDescAndExcludesDeleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newSession("first")
	require.NoError(t, store.Create(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := newSession("second")
	require.NoError(t, store.Create(ctx, second))

	require.NoError(t, store.SoftDelete(ctx, first.ID))

	sessions, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, second.ID, sessions[0].ID)
}

func TestUpdatePatchesFieldsAndBumpsUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	session := newSession("before")
	require.NoError(t, store.Create(ctx, session))

	newTitle := "after"
	updated, err := store.Update(ctx, session.ID, Update{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	assert.True(t, updated.UpdatedAt.After(session.UpdatedAt) || updated.UpdatedAt.Equal(session.UpdatedAt))
}

func TestSoftDeleteIsIdempotentlyRejectedTwice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	session := newSession("gone")
	require.NoError(t, store.Create(ctx, session))

	require.NoError(t, store.SoftDelete(ctx, session.ID))
	err := store.SoftDelete(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
