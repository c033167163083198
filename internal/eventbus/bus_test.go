package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAssignsMonotonicIDs(t *testing.T) {
	b := New(8, 8)
	e1 := b.Publish("s1", nil, KindRunStarted, nil)
	e2 := b.Publish("s1", nil, KindTurnStarted, nil)
	e3 := b.Publish("s1", nil, KindTurnFinished, nil)

	assert.Equal(t, uint64(1), e1.ID)
	assert.Equal(t, uint64(2), e2.ID)
	assert.Equal(t, uint64(3), e3.ID)
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	b := New(8, 8)
	ch, cancel := b.Subscribe("s1", nil)
	defer cancel()

	b.Publish("s1", nil, KindRunStarted, nil)
	b.Publish("s1", nil, KindRunFinished, nil)

	first := <-ch
	second := <-ch
	assert.Equal(t, KindRunStarted, first.Kind)
	assert.Equal(t, KindRunFinished, second.Kind)
}

func TestSubscribeReplaysFromID(t *testing.T) {
	b := New(8, 8)
	b.Publish("s1", nil, KindRunStarted, nil)
	b.Publish("s1", nil, KindTurnStarted, nil)
	e3 := b.Publish("s1", nil, KindTurnFinished, nil)

	from := uint64(1)
	ch, cancel := b.Subscribe("s1", &from)
	defer cancel()

	replayed := <-ch
	assert.Equal(t, KindTurnStarted, replayed.Kind)
	assert.Equal(t, uint64(2), replayed.ID)

	third := <-ch
	assert.Equal(t, e3.ID, third.ID)
}

func TestSubscribeEmitsGapDetectedWhenEvicted(t *testing.T) {
	b := New(2, 8)
	b.Publish("s1", nil, KindRunStarted, nil)
	b.Publish("s1", nil, KindTurnStarted, nil)
	b.Publish("s1", nil, KindTurnFinished, nil)
	b.Publish("s1", nil, KindRunFinished, nil)

	from := uint64(1)
	ch, cancel := b.Subscribe("s1", &from)
	defer cancel()

	gap := <-ch
	assert.Equal(t, KindGapDetected, gap.Kind)
}

func TestSlowSubscriberIsDetachedNotBlocking(t *testing.T) {
	b := New(4, 2)
	ch, cancel := b.Subscribe("s1", nil)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Publish("s1", nil, KindModelDelta, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	// Channel should eventually be closed once its buffer filled and it was detached.
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)

	assert.Greater(t, b.DroppedSubscribers("s1"), uint64(0))
}

func TestCancelClosesChannel(t *testing.T) {
	b := New(4, 4)
	ch, cancel := b.Subscribe("s1", nil)
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
}
