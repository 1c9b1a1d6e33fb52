package mqttstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// fakeBroker keeps retained messages and delivers publishes to matching
// subscriptions synchronously.
type fakeBroker struct {
	mu       sync.Mutex
	retained map[string][]byte
	subs     map[string]mqtt.MessageHandler
	failPub  error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{retained: make(map[string][]byte), subs: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	if b.failPub != nil {
		b.mu.Unlock()
		return b.failPub
	}
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = payload
		}
	}
	var handlers []mqtt.MessageHandler
	for pattern, h := range b.subs {
		if mqtt.Match(pattern, topic) {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	b.subs[topic] = handler
	retained := make(map[string][]byte, len(b.retained))
	for t, p := range b.retained {
		if mqtt.Match(topic, t) {
			retained[t] = p
		}
	}
	b.mu.Unlock()

	for t, p := range retained {
		handler(t, p)
	}
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.subs, topic)
	b.mu.Unlock()
	return nil
}

func get(t *testing.T, s *Store, id, band string) transport.Record {
	t.Helper()
	var rec transport.Record
	if err := s.Get(context.Background(), id, band, func(r transport.Record) { rec = r }); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return rec
}

func TestStore_UpdatePublishesRetained(t *testing.T) {
	broker := newFakeBroker()
	s := New(broker, "", 1)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx := context.Background()

	var updates int
	s.Updated(ctx, "", "", func(transport.Record) { updates++ })

	if err := s.Update(ctx, "urn:a", "istate", map[string]any{"on": true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Update(ctx, "urn:a", "istate", map[string]any{"level": 2}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	raw := broker.retained["graylogic/things/urn:a/istate"]
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("retained payload %q: %v", raw, err)
	}
	if stored["on"] != true || stored["level"] != float64(2) {
		t.Errorf("retained = %v, want merged band", stored)
	}
	if updates != 2 {
		t.Errorf("updates = %d, want 2 (broker echo suppressed)", updates)
	}
	if rec := get(t, s, "urn:a", "istate"); rec.Value["level"] != float64(2) && rec.Value["level"] != 2 {
		t.Errorf("Get() = %v", rec.Value)
	}
}

func TestStore_LoadsRetainedOnStart(t *testing.T) {
	broker := newFakeBroker()
	broker.retained["graylogic/things/urn:a/meta"] = []byte(`{"schema:name":"Lamp"}`)
	broker.retained["graylogic/things/urn:a/istate"] = []byte(`{"on":false}`)
	broker.retained["graylogic/other/topic"] = []byte(`{}`)

	s := New(broker, "", 0)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if rec := get(t, s, "urn:a", "meta"); rec.Value["schema:name"] != "Lamp" {
		t.Errorf("meta = %v", rec.Value)
	}
	dir := get(t, s, "urn:a", "")
	if bands := dir.Value[transport.DirectoryBands].([]string); len(bands) != 2 {
		t.Errorf("directory = %v", bands)
	}

	var ids []string
	s.List(context.Background(), nil, func(id string, end bool) {
		if !end {
			ids = append(ids, id)
		}
	})
	if len(ids) != 1 || ids[0] != "urn:a" {
		t.Errorf("List() = %v, want [urn:a]", ids)
	}
}

func TestStore_Remove(t *testing.T) {
	broker := newFakeBroker()
	s := New(broker, "test", 0)
	s.Start()
	ctx := context.Background()

	s.Update(ctx, "urn:a", "istate", map[string]any{"on": true})
	s.Update(ctx, "urn:a", "meta", map[string]any{"x": 1})

	if err := s.Remove(ctx, "urn:a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(broker.retained) != 0 {
		t.Errorf("retained after Remove = %v, want none", broker.retained)
	}
	if rec := get(t, s, "urn:a", ""); rec.Status != transport.Missing {
		t.Errorf("directory Status = %v, want missing", rec.Status)
	}
}

func TestStore_UpdatePublishError(t *testing.T) {
	broker := newFakeBroker()
	broker.failPub = mqtt.ErrNotConnected
	s := New(broker, "", 0)

	err := s.Update(context.Background(), "urn:a", "istate", map[string]any{"on": true})
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Update() error = %v, want ErrNotConnected", err)
	}
	if rec := get(t, s, "urn:a", "istate"); rec.Status != transport.Missing {
		t.Error("failed publish should not be cached")
	}
}

func TestStore_ConcurrentUpdatesKeepEveryKey(t *testing.T) {
	broker := newFakeBroker()
	s := New(broker, "", 0)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := s.Update(ctx, "urn:a", "istate", map[string]any{key: true}); err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}(fmt.Sprintf("k%d", i))
	}
	wg.Wait()

	var stored map[string]any
	broker.mu.Lock()
	raw := broker.retained["graylogic/things/urn:a/istate"]
	broker.mu.Unlock()
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("retained payload %q: %v", raw, err)
	}
	if len(stored) != writers {
		t.Errorf("retained band has %d keys, want %d", len(stored), writers)
	}
	if rec := get(t, s, "urn:a", "istate"); len(rec.Value) != writers {
		t.Errorf("cached band has %d keys, want %d", len(rec.Value), writers)
	}
}
