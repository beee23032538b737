package device

import (
	"sync"
	"time"

	"github.com/tracklab/gatelink/internal/wire"
)

// EventType classifies a state-change notification for observers.
type EventType string

const (
	EventDeviceUpdated    EventType = "device_updated"
	EventDeviceRemoved    EventType = "device_removed"
	EventConnection       EventType = "connection"
	EventListing          EventType = "listing"
	EventTransferProgress EventType = "transfer_progress"
	EventTransferDone     EventType = "transfer_done"
	EventTimer            EventType = "timer"
)

// Event is the envelope published to observers. Data holds one of the
// payload types below, keyed by Type.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// ConnectionUpdate reports a connection state change.
type ConnectionUpdate struct {
	ID        string
	Connected bool
}

// ListingUpdate carries the current sorted listing after an entry
// arrives or the listing is cleared.
type ListingUpdate struct {
	Path    string
	Entries []wire.DirEntry
}

// TransferProgress reports download progress. Fraction is always a
// finite value in [0,1]; Expected is 0 when the size is unknown.
type TransferProgress struct {
	Name     string
	Received int
	Expected uint32
	Fraction float64
}

// TimerUpdate reports the timing state machine. Result is zero unless a
// result was just accepted.
type TimerUpdate struct {
	State  TimingState
	Result time.Time
}

// subscriber holds a buffered channel for one observer.
type subscriber struct {
	ch chan Event
}

// Bus fans state-change events out to all registered observers. It is
// deliberately decoupled from any UI binding: the core only publishes,
// and zero subscribers is fine.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBus constructs a ready Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers an observer. Returns a receive channel and an
// unsubscribe function that must be called when the observer goes away
// (it closes the channel). Unsubscribing more than once is safe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 64)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}

// Publish sends an Event to all current subscribers. Slow consumers are
// skipped (their buffer is full) so the protocol loop never stalls on an
// observer.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
