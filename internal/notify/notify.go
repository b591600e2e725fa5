// Package notify implements the multi-producer, multi-consumer broadcast
// bus (spec.md §4.6, C7) that the telemetry store uses to tell Follow
// subscribers that new data landed. Events carry only identifying deltas,
// never copies of the data itself: a subscriber that wants content
// re-reads the store under a fresh snapshot.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// TraceVersion identifies one trace group's version at the moment a
// TracesAdded event was published.
type TraceVersion struct {
	TraceID [16]byte
	Version uint64
}

// TableKind names one of the three telemetry tables.
type TableKind int

const (
	KindTraces TableKind = iota
	KindLogs
	KindMetrics
)

func (k TableKind) String() string {
	switch k {
	case KindTraces:
		return "traces"
	case KindLogs:
		return "logs"
	case KindMetrics:
		return "metrics"
	default:
		return "unknown"
	}
}

// Event is the sealed set of change notifications the store can publish.
type Event interface{ isEvent() }

type TracesAdded struct{ Versions []TraceVersion }
type LogsAdded struct{ Count int }
type MetricsAdded struct{ Count int }
type Cleared struct{ Kind TableKind }

func (TracesAdded) isEvent()  {}
func (LogsAdded) isEvent()    {}
func (MetricsAdded) isEvent() {}
func (Cleared) isEvent()      {}

// Notifier fans a stream of Events out to any number of subscribers, each
// with its own bounded buffer. A subscriber that can't keep up is
// disconnected with a lagged signal rather than silently dropping events
// for everyone else (spec.md §4.4, §7).
type Notifier struct {
	mu            sync.Mutex
	defaultBuffer int
	subs          map[uuid.UUID]*Subscription
}

// New creates a Notifier whose subscriptions default to the given buffer
// size when Subscribe is called with bufferSize <= 0. spec.md §6 asks for
// at least 64 frames of headroom by default.
func New(defaultBuffer int) *Notifier {
	if defaultBuffer <= 0 {
		defaultBuffer = 64
	}
	return &Notifier{
		defaultBuffer: defaultBuffer,
		subs:          make(map[uuid.UUID]*Subscription),
	}
}

// Subscription is a live handle to the broadcast stream. Callers read
// Events() until it's closed, and may check Lagged() to distinguish a
// backpressure disconnect from a deliberate Close().
type Subscription struct {
	ID     uuid.UUID
	events chan Event
	lagged chan struct{}

	n         *Notifier
	closeOnce sync.Once
}

func (s *Subscription) Events() <-chan Event   { return s.events }
func (s *Subscription) Lagged() <-chan struct{} { return s.lagged }

// Close cancels the subscription. Idempotent, safe to call from any
// goroutine including after a lagged disconnect already removed it.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.n.remove(s.ID)
		close(s.events)
	})
}

// Subscribe registers a new subscription. bufferSize <= 0 uses the
// Notifier's default.
func (n *Notifier) Subscribe(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = n.defaultBuffer
	}

	sub := &Subscription{
		ID:     uuid.New(),
		events: make(chan Event, bufferSize),
		lagged: make(chan struct{}),
		n:      n,
	}

	n.mu.Lock()
	n.subs[sub.ID] = sub
	n.mu.Unlock()

	return sub
}

// Publish delivers ev to every live subscriber. A subscriber whose buffer
// is full is disconnected: its lagged channel is closed (a one-shot signal
// a Follow handler selects on) and it is removed from the fan-out set. The
// remaining subscribers are unaffected.
//
// Callers must invoke Publish only after releasing the store's write lock,
// per spec.md §4.1/§5's "publication happens after the exclusive write
// section releases" ordering guarantee.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	targets := make([]*Subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		targets = append(targets, sub)
	}
	n.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.events <- ev:
		default:
			n.disconnectLagged(sub)
		}
	}
}

func (n *Notifier) disconnectLagged(sub *Subscription) {
	sub.closeOnce.Do(func() {
		n.remove(sub.ID)
		close(sub.lagged)
		close(sub.events)
	})
}

func (n *Notifier) remove(id uuid.UUID) {
	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
}

// SubscriberCount reports the number of live subscriptions, used by the
// /stats introspection endpoint.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
