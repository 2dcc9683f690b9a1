// File: internal/events/bus.go
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/robit-man/web-scrape-service/api/schemas"
)

// Bus fans session telemetry out to live subscribers and keeps a bounded ring
// of recent events per session. A session's queue exists only between Open and
// Close; publishing to an unknown session is a no-op.
//
// Delivery contract: subscribers receive events published after they attach,
// in publish order. The ring is never replayed onto the live stream; it backs
// the recent-events snapshot so briefly disconnected clients can bridge gaps
// by polling.
type Bus struct {
	mu       sync.Mutex
	log      *zap.Logger
	depth    int
	nextID   int64
	sessions map[string]*sessionQueue
}

type sessionQueue struct {
	ring   *ring
	subs   map[int64]chan schemas.Event
	lastTS int64
}

// Subscription is one live attachment to a session's event stream. C is
// closed when the owning session closes; detaching early is done with Close.
type Subscription struct {
	C <-chan schemas.Event

	bus  *Bus
	sid  string
	id   int64
	once sync.Once
}

// Close detaches the subscription. Idempotent; safe to call after the
// session itself has closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.sid, s.id)
	})
}

// NewBus builds a Bus whose per-session ring and subscriber channels hold
// depth events.
func NewBus(logger *zap.Logger, depth int) *Bus {
	return &Bus{
		log:      logger.Named("events"),
		depth:    depth,
		sessions: make(map[string]*sessionQueue),
	}
}

// Open creates the event queue for sid. Opening an existing sid resets it.
func (b *Bus) Open(sid string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.sessions[sid]; ok {
		b.closeQueueLocked(sid, q)
	}
	b.sessions[sid] = &sessionQueue{
		ring: newRing(b.depth),
		subs: make(map[int64]chan schemas.Event),
	}
}

// Close tears down sid's queue. Subscriber channels are closed so attached
// streams observe termination, not an error; the ring is discarded.
func (b *Bus) Close(sid string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.sessions[sid]; ok {
		b.closeQueueLocked(sid, q)
	}
}

func (b *Bus) closeQueueLocked(sid string, q *sessionQueue) {
	for id, ch := range q.subs {
		close(ch)
		delete(q.subs, id)
	}
	delete(b.sessions, sid)
}

// Publish appends ev to sid's ring (dropping the oldest entry on overflow)
// and forwards it to every attached subscriber. Publishers never block: a
// subscriber with a full channel loses the event.
func (b *Bus) Publish(sid string, ev schemas.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.sessions[sid]
	if !ok {
		b.log.Debug("Dropping event for unknown session.",
			zap.String("session_id", sid), zap.String("type", string(ev.Type)))
		return
	}

	// Timestamps stay monotonic per session even if the wall clock steps back.
	if ev.Timestamp < q.lastTS {
		ev.Timestamp = q.lastTS
	} else {
		q.lastTS = ev.Timestamp
	}

	q.ring.push(ev)

	for id, ch := range q.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("Subscriber too slow; dropping event.",
				zap.String("session_id", sid), zap.Int64("subscriber", id))
		}
	}
}

// Subscribe attaches a live subscriber to sid. No history is replayed: the
// stream starts with the next Publish. Unknown sids are rejected.
func (b *Bus) Subscribe(sid string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.sessions[sid]
	if !ok {
		return nil, schemas.Errorf(schemas.CodeSessionNotFound, "no event stream for session %q", sid)
	}

	b.nextID++
	id := b.nextID
	ch := make(chan schemas.Event, b.depth)
	q.subs[id] = ch

	return &Subscription{C: ch, bus: b, sid: sid, id: id}, nil
}

func (b *Bus) unsubscribe(sid string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.sessions[sid]; ok {
		delete(q.subs, id)
	}
}

// Recent returns a copy of sid's ring, oldest first. Unknown sids yield nil.
func (b *Bus) Recent(sid string) []schemas.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.sessions[sid]
	if !ok {
		return nil
	}
	return q.ring.snapshot()
}

// Subscribers reports the number of live attachments for sid.
func (b *Bus) Subscribers(sid string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.sessions[sid]; ok {
		return len(q.subs)
	}
	return 0
}
