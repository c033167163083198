package sessionactor

import (
	"context"
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
	"github.com/forgewright/agentcore/pkg/models"
)

type fakeProvider struct {
	complete func(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error)
}

func (p *fakeProvider) Complete(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error) {
	return p.complete(ctx, req)
}
func (p *fakeProvider) Name() string               { return "fake" }
func (p *fakeProvider) Models() []agentloop.Model  { return nil }
func (p *fakeProvider) SupportsTools() bool        { return true }

func textOnlyProvider(text string) *fakeProvider {
	return &fakeProvider{complete: func(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error) {
		ch := make(chan *agentloop.CompletionChunk, 2)
		ch <- &agentloop.CompletionChunk{Text: text}
		ch <- &agentloop.CompletionChunk{Done: true}
		close(ch)
		return ch, nil
	}}
}

func blockingProvider(release <-chan struct{}) *fakeProvider {
	return &fakeProvider{complete: func(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error) {
		ch := make(chan *agentloop.CompletionChunk, 2)
		go func() {
			select {
			case <-release:
			case <-ctx.Done():
				close(ch)
				return
			}
			ch <- &agentloop.CompletionChunk{Text: "done"}
			ch <- &agentloop.CompletionChunk{Done: true}
			close(ch)
		}()
		return ch, nil
	}}
}

func newTestActor(t *testing.T, provider agentloop.LLMProvider) (*Actor, *runmanager.Manager, *checkpoint.Store) {
	t.Helper()
	store := checkpoint.NewStore(t.TempDir())
	manager := runmanager.New()
	actor := New(Deps{
		Bus:           eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer),
		Checkpoints:   store,
		Manager:       manager,
		Pending:       pendingtools.New(),
		Provider:      provider,
		LoopConfig:    agentloop.DefaultConfig(),
		FlushInterval: 10 * time.Millisecond,
	})
	return actor, manager, store
}

func triggering(sessionID uuid.UUID, text string) models.Message {
	return models.Message{SessionID: sessionID.String(), Role: models.RoleUser, Parts: []models.Part{models.TextPart(text)}, CreatedAt: time.Now()}
}

func waitForIdle(t *testing.T, manager *runmanager.Manager, sessionID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if manager.State(sessionID).Kind == runmanager.Idle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached idle, state=%v", sessionID, manager.State(sessionID))
}

func TestLaunchRunsToCompletionAndPersistsCheckpoint(t *testing.T) {
	actor, manager, store := newTestActor(t, textOnlyProvider("hello"))
	sessionID := uuid.New()

	_, err := manager.StartRun(sessionID, actor.Launch(context.Background(), sessionID, triggering(sessionID, "hi")))
	require.NoError(t, err)

	waitForIdle(t, manager, sessionID)

	env, err := store.LoadLatest(sessionID.String())
	require.NoError(t, err)
	assert.NotEmpty(t, env.Messages)
	assert.Equal(t, models.RoleAssistant, env.Messages[len(env.Messages)-1].Role)
}

func TestLaunchRejectsConcurrentRunOnSameSession(t *testing.T) {
	release := make(chan struct{})
	actor, manager, _ := newTestActor(t, blockingProvider(release))
	sessionID := uuid.New()

	_, err := manager.StartRun(sessionID, actor.Launch(context.Background(), sessionID, triggering(sessionID, "hi")))
	require.NoError(t, err)

	_, err = manager.StartRun(sessionID, actor.Launch(context.Background(), sessionID, triggering(sessionID, "again")))
	assert.ErrorIs(t, err, runmanager.ErrSessionAlreadyRunning)

	close(release)
	waitForIdle(t, manager, sessionID)
}

func TestCancelRunStopsTheLoop(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	actor, manager, _ := newTestActor(t, blockingProvider(release))
	sessionID := uuid.New()

	runID, err := manager.StartRun(sessionID, actor.Launch(context.Background(), sessionID, triggering(sessionID, "hi")))
	require.NoError(t, err)

	require.NoError(t, manager.CancelRun(sessionID, runID))

	waitForIdle(t, manager, sessionID)
}

func TestLaunchResumesFromExistingCheckpoint(t *testing.T) {
	actor, manager, store := newTestActor(t, textOnlyProvider("second"))
	sessionID := uuid.New()

	seeded := []models.Message{triggering(sessionID, "first")}
	require.NoError(t, store.SaveLatest(sessionID.String(), checkpoint.NewEnvelope(sessionID.String(), nil, seeded, nil)))

	_, err := manager.StartRun(sessionID, actor.Launch(context.Background(), sessionID, triggering(sessionID, "second turn")))
	require.NoError(t, err)

	waitForIdle(t, manager, sessionID)

	env, err := store.LoadLatest(sessionID.String())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(env.Messages), 3, "resumed history should include the seeded message plus new turns")
}
