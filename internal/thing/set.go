package thing

import (
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/notify"
)

// Set is an ordered, deduplicated, growing collection of Things.
//
// One Set is returned per discovery request. Listeners learn about Things
// added after they subscribe.
type Set struct {
	mu     sync.RWMutex
	things []*Thing
	index  map[string]*Thing

	added notify.Hub[*Thing]
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{index: make(map[string]*Thing)}
}

// Add appends t unless a Thing with the same id is already present.
// It reports whether t was added.
func (s *Set) Add(t *Thing) bool {
	s.mu.Lock()
	if _, exists := s.index[t.ID()]; exists {
		s.mu.Unlock()
		return false
	}
	s.index[t.ID()] = t
	s.things = append(s.things, t)
	s.mu.Unlock()

	s.added.Emit(t)
	return true
}

// Things returns the members in insertion order.
func (s *Set) Things() []*Thing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Thing(nil), s.things...)
}

// Len returns the number of members.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.things)
}

// Find returns the member with id, or nil.
func (s *Set) Find(id string) *Thing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[id]
}

// Subscribe calls fn for every Thing added from now on.
func (s *Set) Subscribe(fn func(*Thing)) (cancel func()) {
	return s.added.Subscribe(fn)
}

// Each calls fn for every current member and every future one, exactly
// once per Thing.
func (s *Set) Each(fn func(*Thing)) (cancel func()) {
	var (
		seenMu sync.Mutex
		seen   = make(map[string]bool)
	)
	deliver := func(t *Thing) {
		seenMu.Lock()
		if seen[t.ID()] {
			seenMu.Unlock()
			return
		}
		seen[t.ID()] = true
		seenMu.Unlock()
		fn(t)
	}

	s.mu.RLock()
	existing := append([]*Thing(nil), s.things...)
	cancel = s.added.Subscribe(deliver)
	s.mu.RUnlock()

	for _, t := range existing {
		deliver(t)
	}
	return cancel
}

// Update applies the same update to every member, returning the number of
// members with at least one changed key.
func (s *Set) Update(band string, values map[string]any, opts UpdateOptions) (int, error) {
	changed := 0
	for _, t := range s.Things() {
		res, err := t.Update(band, values, opts)
		if err != nil {
			return changed, err
		}
		if len(res.Changed) > 0 {
			changed++
		}
	}
	return changed, nil
}

// Filter returns the members for which keep returns true.
func (s *Set) Filter(keep func(*Thing) bool) []*Thing {
	var out []*Thing
	for _, t := range s.Things() {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
