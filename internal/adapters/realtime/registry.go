package realtime

import (
	"sync"

	"github.com/goccy/go-json"
)

type Handler func(data json.RawMessage)

// Listener is a registration handle. Identity is the pointer: registering the
// same handle twice for one event is a no-op.
type Listener struct {
	fn Handler
}

func NewListener(fn Handler) *Listener {
	return &Listener{fn: fn}
}

// Registry is the durable record of listeners. It survives reconnects and is
// only emptied by Off or Disconnect.
type Registry struct {
	mu     sync.RWMutex
	events map[string][]*Listener
}

func NewRegistry() *Registry {
	return &Registry{events: make(map[string][]*Listener)}
}

func (r *Registry) Add(event string, listener *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return addListener(r.events, event, listener)
}

// Remove drops listener from event, or every listener of event when listener
// is nil.
func (r *Registry) Remove(event string, listener *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removeListener(r.events, event, listener)
}

func (r *Registry) Len(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events[event])
}

func (r *Registry) Events() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]*Listener)
}

func (r *Registry) snapshot() map[string][]*Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]*Listener, len(r.events))
	for event, listeners := range r.events {
		out[event] = append([]*Listener(nil), listeners...)
	}
	return out
}

func addListener(events map[string][]*Listener, event string, listener *Listener) bool {
	for _, existing := range events[event] {
		if existing == listener {
			return false
		}
	}
	events[event] = append(events[event], listener)
	return true
}

func removeListener(events map[string][]*Listener, event string, listener *Listener) {
	if listener == nil {
		delete(events, event)
		return
	}

	listeners := events[event]
	for i, existing := range listeners {
		if existing == listener {
			listeners = append(listeners[:i:i], listeners[i+1:]...)
			break
		}
	}
	if len(listeners) == 0 {
		delete(events, event)
		return
	}
	events[event] = listeners
}
