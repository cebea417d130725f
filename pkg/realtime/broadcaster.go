package realtime

import "sync"

// Event is a named payload pushed to subscribers. Data may be empty when the
// name alone tells the client what to refetch.
type Event struct {
	Name string `json:"name"`
	Data string `json:"data,omitempty"`
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// Broadcaster fans events out to SSE and websocket subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its event channel.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, DefaultBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers events to all subscribers in order.
func (b *Broadcaster) Publish(events ...Event) {
	b.mu.Lock()
	for ch := range b.subs {
		for _, e := range events {
			select {
			case ch <- e:
			default:
				// Drop if the subscriber is lagging; the next state event catches it up.
			}
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
