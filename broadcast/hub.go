// broadcast/hub.go
package broadcast

import (
	"sync"

	"github.com/wfunc/duelarena/logger"
)

// Publisher accepts events. Publish must not block the caller.
type Publisher interface {
	Publish(e Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Subscription receives events from a Hub until it is closed.
type Subscription struct {
	id int64
	C  <-chan Event
	ch chan Event
}

// Hub fans events out to subscribers. A subscriber whose buffer is full
// misses the event rather than stalling the publisher.
type Hub struct {
	subscribers map[int64]*Subscription
	nextID      int64
	closed      bool
	mutex       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[int64]*Subscription),
	}
}

// Subscribe registers a subscriber with the given channel buffer.
func (h *Hub) Subscribe(buffer int) *Subscription {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	ch := make(chan Event, buffer)
	sub := &Subscription{id: h.nextID, C: ch, ch: ch}
	h.nextID++
	if h.closed {
		close(ch)
		return sub
	}
	h.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.subscribers[sub.id]; exists {
		delete(h.subscribers, sub.id)
		close(sub.ch)
	}
}

func (h *Hub) Publish(e Event) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, sub := range h.subscribers {
		select {
		case sub.ch <- e:
		default:
			logger.Log.Warnf("Dropping %s event for slow subscriber %d", e.Kind, sub.id)
		}
	}
}

// Close closes every subscription; later publishes are dropped.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}
