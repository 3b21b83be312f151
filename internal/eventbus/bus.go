package eventbus

import (
	"log"
	"sync"
	"sync/atomic"
)

// subscriberBacklog is the bounded channel depth per subscriber, matching
// the ring-buffer capacity spec.md §4.1 suggests. This is the same depth
// the teacher's internal/rpc.Server uses for its SSE subscriber channels.
const subscriberBacklog = 64

// Bus is a single-producer-agnostic, multi-consumer broadcast of Event.
// Publishing never blocks: a subscriber that falls behind has events
// dropped for it and observes the drop count on its next Receive.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

type subscription struct {
	ch     chan Event
	lagged atomic.Uint64
}

// Receiver is the read side of a subscription returned by Subscribe.
type Receiver struct {
	bus *Bus
	id  uint64
	sub *subscription
}

// Emit broadcasts event to every current subscriber. Fails (logs a
// warning, returns) only if there are no subscribers, per spec.md §4.1.
// A subscriber whose channel is full does not block Emit; that
// subscriber's lag counter is incremented instead.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subs) == 0 {
		log.Printf("eventbus: emit %s with no subscribers", event.Type)
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.lagged.Add(1)
		}
	}
}

// Subscribe registers a new receiver. The receiver sees only events
// emitted after this call returns.
func (b *Bus) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{ch: make(chan Event, subscriberBacklog)}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	return &Receiver{bus: b, id: id, sub: sub}
}

// Close shuts down the bus: every outstanding Receiver's channel is closed,
// and further Receive calls return ok=false.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Receive blocks for the next event. lagged is the number of events
// dropped for this receiver since the previous call to Receive (spec.md
// §4.1/§9's "Lagged(n)" signal); a non-zero lagged means the caller missed
// events and should resynchronize (for the search component, that means a
// full index rebuild, per spec.md §9). ok is false once the bus has been
// closed and no further events will arrive.
func (r *Receiver) Receive() (event Event, lagged uint64, ok bool) {
	lagged = r.sub.lagged.Swap(0)
	ev, open := <-r.sub.ch
	if !open {
		return Event{}, lagged, false
	}
	return ev, lagged, true
}

// Unsubscribe removes this receiver from the bus. Safe to call more than
// once.
func (r *Receiver) Unsubscribe() {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()

	if sub, ok := r.bus.subs[r.id]; ok {
		close(sub.ch)
		delete(r.bus.subs, r.id)
	}
}

// SubscriberCount reports the number of live subscribers, for status/
// diagnostics reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
