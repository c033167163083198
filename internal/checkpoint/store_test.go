package checkpoint

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/agentcore/pkg/models"
)

func TestSaveAndLoadLatestRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	runID := uuid.New()
	env := NewEnvelope("sess-1", &runID, []models.Message{
		{ID: "m1", SessionID: "sess-1", Role: models.RoleUser, Parts: []models.Part{models.TextPart("hi")}},
	}, map[string]any{"active_model": "anthropic/claude"})

	require.NoError(t, store.SaveLatest("sess-1", env))

	loaded, err := store.LoadLatest("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", loaded.SessionID)
	assert.Equal(t, runID, *loaded.RunID)
	assert.Len(t, loaded.Messages, 1)
	assert.Equal(t, "anthropic/claude", loaded.Metadata["active_model"])
}

func TestLoadLatestReturnsErrNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.LoadLatest("missing-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadLatestReturnsErrCorruptOnBadJSON(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.SaveLatest("sess-1", NewEnvelope("sess-1", nil, nil, nil)))

	require.NoError(t, os.WriteFile(dir+"/sess-1.json", []byte("{not json"), 0o644))

	_, err := store.LoadLatest("sess-1")
	var corrupt *ErrCorrupt
	assert.ErrorAs(t, err, &corrupt)
}

func TestSaveLatestOverwritesAtomically(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.SaveLatest("sess-1", NewEnvelope("sess-1", nil, []models.Message{{ID: "m1"}}, nil)))
	require.NoError(t, store.SaveLatest("sess-1", NewEnvelope("sess-1", nil, []models.Message{{ID: "m2"}}, nil)))

	loaded, err := store.LoadLatest("sess-1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "m2", loaded.Messages[0].ID)
}
