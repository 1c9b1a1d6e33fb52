package mirror

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/transport"
	"github.com/nerrad567/gray-logic-things/internal/transport/memory"
)

// recordingStore is a memory store that records writes and subscriptions.
type recordingStore struct {
	*memory.Store

	mu            sync.Mutex
	updates       []transport.Record
	subscriptions int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: memory.New()}
}

func (s *recordingStore) Update(ctx context.Context, id, band string, value map[string]any) error {
	s.mu.Lock()
	s.updates = append(s.updates, transport.Record{ID: id, Band: band, Value: value})
	s.mu.Unlock()
	return s.Store.Update(ctx, id, band, value)
}

func (s *recordingStore) Updated(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	s.mu.Lock()
	s.subscriptions++
	s.mu.Unlock()
	return s.Store.Updated(ctx, id, band, fn)
}

func (s *recordingStore) Added(ctx context.Context, params transport.Params, fn transport.ListFunc) error {
	s.mu.Lock()
	s.subscriptions++
	s.mu.Unlock()
	return s.Store.Added(ctx, params, fn)
}

// updatesFor returns the writes to band.
func (s *recordingStore) updatesFor(band string) []transport.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transport.Record
	for _, u := range s.updates {
		if u.Band == band {
			out = append(out, u)
		}
	}
	return out
}

func getValue(s transport.Transport, id, band string) (map[string]any, transport.Status) {
	var rec transport.Record
	s.Get(context.Background(), id, band, func(r transport.Record) { rec = r })
	return rec.Value, rec.Status
}

// lazyStore announces every write as OnDemand without a value, the way a
// store that only carries change hints does. With withhold, Get answers
// OnDemand as well.
type lazyStore struct {
	*memory.Store
	withhold bool

	mu   sync.Mutex
	gets int
}

func newLazyStore(withhold bool) *lazyStore {
	return &lazyStore{Store: memory.New(), withhold: withhold}
}

func (s *lazyStore) Updated(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	return s.Store.Updated(ctx, id, band, func(rec transport.Record) {
		fn(transport.Record{ID: rec.ID, Band: rec.Band, Status: transport.OnDemand})
	})
}

func (s *lazyStore) Get(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	if s.withhold {
		fn(transport.Record{ID: id, Band: band, Status: transport.OnDemand})
		return nil
	}
	return s.Store.Get(ctx, id, band, fn)
}

func (s *lazyStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// noAddedStore is a recording store whose Added subscription fails.
type noAddedStore struct {
	*recordingStore
}

func (noAddedStore) Added(context.Context, transport.Params, transport.ListFunc) error {
	return transport.ErrNotImplemented
}
