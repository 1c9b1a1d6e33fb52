// Package notify provides a typed broadcast channel with unbounded
// listeners delivered in registration order.
package notify

import "sync"

// Hub broadcasts values of type T to subscribed listeners.
//
// Emit snapshots the listener list under the lock and calls listeners
// outside it, so a listener may subscribe or cancel (itself or others)
// without deadlocking. Changes made during an emission apply to the next one.
type Hub[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []entry[T]
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe adds fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (h *Hub[T]) Subscribe(fn func(T)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners = append(h.listeners, entry[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.listeners {
		if e.id == id {
			// Copy instead of shifting in place: an Emit may still be
			// iterating the previous backing array.
			next := make([]entry[T], 0, len(h.listeners)-1)
			next = append(next, h.listeners[:i]...)
			h.listeners = append(next, h.listeners[i+1:]...)
			return
		}
	}
}

// Emit delivers v to every listener registered when Emit was called.
func (h *Hub[T]) Emit(v T) {
	h.mu.RLock()
	snapshot := h.listeners
	h.mu.RUnlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

// Len returns the number of listeners.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
