package controlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/agentcore/internal/agentloop"
	"github.com/forgewright/agentcore/internal/checkpoint"
	"github.com/forgewright/agentcore/internal/eventbus"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/runmanager"
	"github.com/forgewright/agentcore/internal/sessionactor"
	"github.com/forgewright/agentcore/internal/sessionstore/sqlite"
)

type fakeProvider struct {
	complete func(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error)
}

func (p *fakeProvider) Complete(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error) {
	return p.complete(ctx, req)
}
func (p *fakeProvider) Name() string              { return "fake" }
func (p *fakeProvider) Models() []agentloop.Model { return []agentloop.Model{{ID: "fake-1", Name: "Fake One"}} }
func (p *fakeProvider) SupportsTools() bool       { return true }

func textOnlyProvider(text string) *fakeProvider {
	return &fakeProvider{complete: func(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error) {
		ch := make(chan *agentloop.CompletionChunk, 2)
		ch <- &agentloop.CompletionChunk{Text: text}
		ch <- &agentloop.CompletionChunk{Done: true}
		close(ch)
		return ch, nil
	}}
}

func newTestServer(t *testing.T) (*Server, *sqlite.Store, *runmanager.Manager) {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	checkpoints := checkpoint.NewStore(t.TempDir())
	manager := runmanager.New()
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	pending := pendingtools.New()

	actor := sessionactor.New(sessionactor.Deps{
		Bus:           bus,
		Checkpoints:   checkpoints,
		Manager:       manager,
		Pending:       pending,
		Provider:      textOnlyProvider("hello"),
		LoopConfig:    agentloop.DefaultConfig(),
		FlushInterval: 10 * time.Millisecond,
	})

	srv := New(Config{
		Addr:         ":0",
		Sessions:     store,
		Checkpoints:  checkpoints,
		Manager:      manager,
		Pending:      pending,
		Bus:          bus,
		Actor:        actor,
		Providers:    map[string]agentloop.LLMProvider{"fake": textOnlyProvider("hello")},
		DefaultModel: "fake-1",
		Approval:     pendingtools.Policy{Default: pendingtools.Allow},
	})
	return srv, store, manager
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", createSessionRequest{Title: "demo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "demo", created.Title)
	assert.Equal(t, "idle", created.Status)

	rec = doJSON(t, handler, http.MethodGet, "/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSessionRejectsMissingTitle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/sessions", createSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessageStartsRunThenAllowsANewOneOnceFinished(t *testing.T) {
	srv, _, manager := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", createSessionRequest{Title: "demo"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+session.ID+"/messages", postMessageRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp postMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)

	sessionID, err := uuid.Parse(session.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, active := manager.ActiveRunID(sessionID)
		return !active
	}, time.Second, 5*time.Millisecond)

	rec = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+session.ID+"/messages", postMessageRequest{Message: "again"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostMessageRejectsMissingBody(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", createSessionRequest{Title: "demo"})
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+session.ID+"/messages", postMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndModelsAndConfig(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/v1/models", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fake-1")

	rec = doJSON(t, handler, http.MethodGet, "/v1/config", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fake-1")
}

func TestDeleteSessionRejectedWhileRunning(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", createSessionRequest{Title: "demo"})
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+session.ID+"/messages", postMessageRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/v1/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
