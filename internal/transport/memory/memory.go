// Package memory implements an in-process record store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// Store keeps records in memory. Callbacks run synchronously on the
// calling goroutine, after the store lock is released.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]map[string]any
	order   []string

	feed transport.Feed
}

var _ transport.Transport = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]map[string]map[string]any)}
}

// List implements transport.Transport. Ids are reported in creation order.
func (s *Store) List(_ context.Context, _ transport.Params, fn transport.ListFunc) error {
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()

	for _, id := range ids {
		fn(id, false)
	}
	fn("", true)
	return nil
}

// Added implements transport.Transport.
func (s *Store) Added(ctx context.Context, _ transport.Params, fn transport.ListFunc) error {
	return s.feed.Added(ctx, fn)
}

// Get implements transport.Transport.
func (s *Store) Get(_ context.Context, id, band string, fn transport.RecordFunc) error {
	s.mu.RLock()
	bands, ok := s.records[id]
	var rec transport.Record
	switch {
	case !ok:
		rec = transport.Record{ID: id, Band: band, Status: transport.Missing}
	case band == "":
		names := make([]string, 0, len(bands))
		for name := range bands {
			names = append(names, name)
		}
		sort.Strings(names)
		rec = transport.Record{
			ID:     id,
			Value:  map[string]any{transport.DirectoryBands: names},
			Status: transport.Available,
		}
	default:
		if value, present := bands[band]; present {
			rec = transport.Record{ID: id, Band: band, Value: thing.CloneMap(value), Status: transport.Available}
		} else {
			rec = transport.Record{ID: id, Band: band, Status: transport.Missing}
		}
	}
	s.mu.RUnlock()

	fn(rec)
	return nil
}

// Update implements transport.Transport.
func (s *Store) Update(_ context.Context, id, band string, value map[string]any) error {
	s.mu.Lock()
	bands, exists := s.records[id]
	if !exists {
		bands = make(map[string]map[string]any)
		s.records[id] = bands
		s.order = append(s.order, id)
	}
	bands[band] = thing.Defaults(bands[band], value)
	s.mu.Unlock()

	if !exists {
		s.feed.PublishAdded(id)
	}
	s.feed.PublishUpdated(transport.Record{ID: id, Band: band, Value: thing.CloneMap(value), Status: transport.Available})
	return nil
}

// Updated implements transport.Transport.
func (s *Store) Updated(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	return s.feed.Updated(ctx, id, band, fn)
}

// Remove implements transport.Transport.
func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
