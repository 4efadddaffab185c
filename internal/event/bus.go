package event

import (
	"sync"

	"github.com/areuok/server/internal/model"
)

// Bus is the process-wide publish/subscribe facility for sign-in events.
// One instance is created at startup and lives for the process lifetime.
//
// Each subscriber owns a fixed-capacity queue. Publish never blocks: when a
// subscriber's queue is full its oldest unread event is dropped, so a slow
// consumer only ever loses its own events and never stalls publishers or
// other subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// Subscription is one subscriber's receive handle. It sees every event
// published after its creation, subject to drop-oldest buffering.
type Subscription struct {
	bus *Bus
	ch  chan model.SigninEvent
}

// NewBus creates a bus whose subscribers each buffer up to buffer events
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Publish delivers the event to every current subscriber. Publishing with
// zero subscribers is a no-op, never an error.
func (b *Bus) Publish(ev model.SigninEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Queue full: drop this subscriber's oldest event to make room.
			// Only the publisher sends on sub.ch under b.mu, so after one
			// receive the send below cannot block.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Subscribe registers a new independent receive handle
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan model.SigninEvent, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// SubscriberCount reports the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close terminates the bus: all subscription channels are closed and further
// publishes are dropped. Used during process shutdown to signal every open
// stream to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

// C returns the channel events arrive on. It is closed when the subscription
// or the bus is closed.
func (s *Subscription) C() <-chan model.SigninEvent {
	return s.ch
}

// Close releases the subscription and its buffer immediately. Safe to call
// more than once and after Bus.Close.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}
