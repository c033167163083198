package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRingSize is how many recent events each session retains for replay.
	DefaultRingSize = 1024
	// DefaultSubscriberBuffer is the live (post-replay) buffer per subscriber.
	DefaultSubscriberBuffer = 256
)

// Bus fans out session events to live subscribers without ever blocking the
// publisher: a subscriber whose buffer fills is detached rather than
// allowed to slow down the agent loop. A detached subscriber that
// resubscribes with its last-seen event ID either gets the missed events
// replayed, or — if they have already been evicted from the ring — a single
// gap_detected event followed by live events from now on.
type Bus struct {
	mu             sync.Mutex
	sessions       map[string]*sessionLog
	ringSize       int
	subscriberSize int
}

// New creates an event bus with the given per-session ring size and
// per-subscriber live buffer size. Zero values fall back to defaults.
func New(ringSize, subscriberBuffer int) *Bus {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Bus{
		sessions:       make(map[string]*sessionLog),
		ringSize:       ringSize,
		subscriberSize: subscriberBuffer,
	}
}

func (b *Bus) logFor(sessionID string) *sessionLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.sessions[sessionID]
	if !ok {
		l = newSessionLog(sessionID, b.ringSize, b.subscriberSize)
		b.sessions[sessionID] = l
	}
	return l
}

// Publish appends an event to the session's log, assigns it the next
// monotonic ID, and fans it out to live subscribers. It never blocks on a
// slow subscriber.
func (b *Bus) Publish(sessionID string, runID *uuid.UUID, kind Kind, data map[string]any) Event {
	return b.logFor(sessionID).publish(Event{
		SessionID: sessionID,
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// Subscribe opens a live channel for a session's events. If fromID is
// non-nil, events with ID > *fromID are replayed first (or a single
// gap_detected event is emitted if some of them have already been evicted
// from the ring). The returned cancel function must be called to release
// the subscription.
func (b *Bus) Subscribe(sessionID string, fromID *uint64) (<-chan Event, func()) {
	return b.logFor(sessionID).subscribe(fromID)
}

// DroppedSubscribers reports how many subscribers have been detached for a
// session due to backpressure, for metrics/diagnostics.
func (b *Bus) DroppedSubscribers(sessionID string) uint64 {
	l := b.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.detachCount
}

type subscriber struct {
	ch chan Event
}

type sessionLog struct {
	mu  sync.Mutex
	id  string
	cap int

	nextID      uint64
	oldestID    uint64
	ring        []Event
	subs        map[uint64]*subscriber
	nextSubID   uint64
	detachCount uint64

	subscriberBuf int
}

func newSessionLog(sessionID string, ringSize, subscriberBuf int) *sessionLog {
	return &sessionLog{
		id:            sessionID,
		cap:           ringSize,
		ring:          make([]Event, ringSize),
		subs:          make(map[uint64]*subscriber),
		subscriberBuf: subscriberBuf,
	}
}

func (l *sessionLog) publish(e Event) Event {
	l.mu.Lock()
	l.nextID++
	e.ID = l.nextID
	l.ring[int((e.ID-1)%uint64(l.cap))] = e
	if l.oldestID == 0 {
		l.oldestID = e.ID
	} else if e.ID-l.oldestID >= uint64(l.cap) {
		l.oldestID = e.ID - uint64(l.cap) + 1
	}

	var detached []uint64
	for id, sub := range l.subs {
		select {
		case sub.ch <- e:
		default:
			close(sub.ch)
			detached = append(detached, id)
		}
	}
	for _, id := range detached {
		delete(l.subs, id)
	}
	l.detachCount += uint64(len(detached))
	l.mu.Unlock()

	return e
}

func (l *sessionLog) subscribe(fromID *uint64) (<-chan Event, func()) {
	l.mu.Lock()

	ch := make(chan Event, l.cap+l.subscriberBuf)

	if fromID != nil {
		start := *fromID + 1
		if l.oldestID != 0 && start < l.oldestID {
			ch <- Event{SessionID: l.id, Kind: KindGapDetected, Timestamp: time.Now()}
			start = l.oldestID
		}
		if l.oldestID != 0 {
			for id := start; id <= l.nextID; id++ {
				ev := l.ring[int((id-1)%uint64(l.cap))]
				if ev.ID == id {
					ch <- ev
				}
			}
		}
	}

	subID := l.nextSubID
	l.nextSubID++
	l.subs[subID] = &subscriber{ch: ch}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if sub, ok := l.subs[subID]; ok {
			delete(l.subs, subID)
			close(sub.ch)
		}
		l.mu.Unlock()
	}

	return ch, cancel
}
