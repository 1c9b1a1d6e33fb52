// Package mqttstore implements a record store on retained MQTT messages.
//
// Every band of every record is one retained JSON message on
// <prefix>/<id>/<band>. The store subscribes to <prefix>/+/+ and keeps a
// cache of everything retained under the prefix; Get and List read the
// cache. Removing a record clears its retained messages.
//
// The broker only carries whole bands, so Updated reports the merged band
// rather than the value passed to Update.
package mqttstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// Client is the subset of *mqtt.Client the store uses.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Store is an MQTT-backed transport.Transport.
//
// Thread Safety:
//   - Safe for concurrent use. Subscription callbacks run on the MQTT
//     client's delivery goroutine.
type Store struct {
	client Client
	prefix string
	qos    byte

	// writeMu serialises Update and Remove from the cache read to the
	// cache write, so concurrent merges of one band cannot drop keys.
	writeMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]map[string]map[string]any
	order []string

	feed transport.Feed
}

var _ transport.Transport = (*Store)(nil)

// New creates a store under prefix. An empty prefix selects
// mqtt.DefaultRecordPrefix.
func New(client Client, prefix string, qos byte) *Store {
	if prefix == "" {
		prefix = mqtt.DefaultRecordPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		qos:    qos,
		cache:  make(map[string]map[string]map[string]any),
	}
}

// Start subscribes to the record topics. Retained records arrive shortly
// after; until then Get reports them missing.
func (s *Store) Start() error {
	if err := s.client.Subscribe(mqtt.Topics{}.AllRecords(s.prefix), s.qos, s.handleMessage); err != nil {
		return fmt.Errorf("subscribing to records: %w", err)
	}
	return nil
}

// Stop unsubscribes from the record topics.
func (s *Store) Stop() error {
	return s.client.Unsubscribe(mqtt.Topics{}.AllRecords(s.prefix))
}

func (s *Store) handleMessage(topic string, payload []byte) error {
	id, band, ok := mqtt.Topics{}.RecordParts(s.prefix, topic)
	if !ok {
		return nil
	}

	if len(payload) == 0 {
		s.forget(id, band)
		return nil
	}

	var value map[string]any
	if err := json.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("decoding %s: %w", topic, err)
	}
	s.store(id, band, value)
	return nil
}

// store caches value and notifies subscribers unless it is unchanged.
func (s *Store) store(id, band string, value map[string]any) {
	added, changed := s.put(id, band, value)
	s.notify(id, band, value, added, changed)
}

// put caches value. It reports whether id is new and whether the band
// changed.
func (s *Store) put(id, band string, value map[string]any) (added, changed bool) {
	s.mu.Lock()
	bands, exists := s.cache[id]
	if !exists {
		bands = make(map[string]map[string]any)
		s.cache[id] = bands
		s.order = append(s.order, id)
	}
	old, had := bands[band]
	if had && thing.Equal(old, value) {
		s.mu.Unlock()
		return !exists, false
	}
	bands[band] = thing.CloneMap(value)
	s.mu.Unlock()
	return !exists, true
}

// notify publishes the outcome of put.
func (s *Store) notify(id, band string, value map[string]any, added, changed bool) {
	if added {
		s.feed.PublishAdded(id)
	}
	if changed {
		s.feed.PublishUpdated(transport.Record{ID: id, Band: band, Value: thing.CloneMap(value), Status: transport.Available})
	}
}

func (s *Store) forget(id, band string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bands, ok := s.cache[id]
	if !ok {
		return
	}
	delete(bands, band)
	if len(bands) > 0 {
		return
	}
	delete(s.cache, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// List implements transport.Transport.
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
	bands, ok := s.cache[id]
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
		rec = transport.Record{ID: id, Value: map[string]any{transport.DirectoryBands: names}, Status: transport.Available}
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

// Update implements transport.Transport. The merged band is cached and
// published retained. Subscribers are notified after the write lock is
// released, so they may write back to the store.
func (s *Store) Update(_ context.Context, id, band string, value map[string]any) error {
	s.writeMu.Lock()
	s.mu.RLock()
	merged := thing.Defaults(s.cache[id][band], value)
	s.mu.RUnlock()

	data, err := json.Marshal(merged)
	if err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("encoding %s/%s: %w", id, band, err)
	}
	if err := s.client.Publish(mqtt.Topics{}.Record(s.prefix, id, band), data, s.qos, true); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("publishing %s/%s: %w", id, band, err)
	}
	added, changed := s.put(id, band, merged)
	s.writeMu.Unlock()

	s.notify(id, band, merged, added, changed)
	return nil
}

// Updated implements transport.Transport.
func (s *Store) Updated(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	return s.feed.Updated(ctx, id, band, fn)
}

// Remove implements transport.Transport. Every cached band of id is
// cleared on the broker.
func (s *Store) Remove(_ context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	var bands []string
	for band := range s.cache[id] {
		bands = append(bands, band)
	}
	s.mu.RUnlock()

	for _, band := range bands {
		if err := s.client.Publish(mqtt.Topics{}.Record(s.prefix, id, band), nil, s.qos, true); err != nil {
			return fmt.Errorf("clearing %s/%s: %w", id, band, err)
		}
		s.forget(id, band)
	}
	return nil
}
