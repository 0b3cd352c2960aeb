package service

import (
	"strings"
	"sync"

	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

// Event represents a document or engine mutation.
type Event struct {
	Document string `json:"document"`
	Resource string `json:"resource"` // e.g. "layers"
	Action   string `json:"action"`   // e.g. "added", "removed"
	ID       string `json:"id"`
	MapID    string `json:"mapId,omitempty"`
}

// engineEvent converts an engine mutation into a bus event.
func engineEvent(doc string, ev engine.Event) Event {
	resource, action, _ := strings.Cut(string(ev.Kind), ".")
	return Event{
		Document: doc,
		Resource: resource + "s",
		Action:   action,
		ID:       ev.ID,
		MapID:    ev.MapID,
	}
}

// EventBus is a simple fan-out pub/sub for mutation events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
