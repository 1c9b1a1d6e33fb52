// Package bridgetest provides an in-memory Bridge for tests.
package bridgetest

import (
	"maps"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
)

// PushCall records one Push.
type PushCall struct {
	State map[string]any
}

// Mock is a scriptable Bridge. The exemplar role reports instances queued
// with AddInstance when Discover runs; the instance role records every
// Connect, Pull and Push.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Mock struct {
	mu sync.Mutex

	meta      map[string]any
	reachable bool
	init      map[string]any

	discovered func(bridge.Bridge)
	pulled     func(map[string]any)

	pending []*Mock

	DiscoverCalls int
	PullCalls     int
	Connects      []map[string]any
	Pushes        []PushCall
	Ignored       []bridge.Bridge

	// PushErr is passed to Push completion callbacks.
	PushErr error

	// HoldPush defers Push completion until CompletePushes is called.
	HoldPush bool
	held     []func(error)

	// SettleTime is returned by Disconnect.
	SettleTime   time.Duration
	Disconnected bool
}

// New returns a mock with the given metadata and reachability.
func New(meta map[string]any, reachable bool) *Mock {
	return &Mock{meta: maps.Clone(meta), reachable: reachable}
}

// Factory returns a bridge.Factory yielding exemplar. The merged init
// parameters are recorded on it.
func Factory(exemplar *Mock) bridge.Factory {
	return func(init map[string]any) (bridge.Bridge, error) {
		exemplar.mu.Lock()
		exemplar.init = maps.Clone(init)
		exemplar.mu.Unlock()
		return exemplar, nil
	}
}

// Init returns the init parameters the exemplar was built with.
func (m *Mock) Init() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.init)
}

// AddInstance queues an instance to report on the next Discover.
func (m *Mock) AddInstance(instance *Mock) {
	m.mu.Lock()
	m.pending = append(m.pending, instance)
	m.mu.Unlock()
}

// Announce reports instance immediately through the discovered callback.
func (m *Mock) Announce(instance *Mock) {
	m.mu.Lock()
	fn := m.discovered
	m.mu.Unlock()
	if fn != nil {
		fn(instance)
	}
}

// Discover implements bridge.Bridge.
func (m *Mock) Discover() {
	m.mu.Lock()
	m.DiscoverCalls++
	pending := m.pending
	m.pending = nil
	fn := m.discovered
	m.mu.Unlock()

	if fn == nil {
		return
	}
	for _, inst := range pending {
		fn(inst)
	}
}

// Connect implements bridge.Bridge.
func (m *Mock) Connect(params map[string]any) {
	m.mu.Lock()
	m.Connects = append(m.Connects, maps.Clone(params))
	m.mu.Unlock()
}

// Pull implements bridge.Bridge.
func (m *Mock) Pull() {
	m.mu.Lock()
	m.PullCalls++
	m.mu.Unlock()
}

// Push implements bridge.Bridge.
func (m *Mock) Push(state map[string]any, done func(error)) {
	m.mu.Lock()
	m.Pushes = append(m.Pushes, PushCall{State: maps.Clone(state)})
	err := m.PushErr
	if m.HoldPush {
		m.held = append(m.held, done)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// CompletePushes runs every held Push completion.
func (m *Mock) CompletePushes() {
	m.mu.Lock()
	held := m.held
	m.held = nil
	err := m.PushErr
	m.mu.Unlock()

	for _, done := range held {
		if done != nil {
			done(err)
		}
	}
}

// Reachable implements bridge.Bridge.
func (m *Mock) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// SetReachable changes reachability and reports a metadata refresh.
func (m *Mock) SetReachable(reachable bool) {
	m.mu.Lock()
	m.reachable = reachable
	fn := m.pulled
	m.mu.Unlock()
	if fn != nil {
		fn(nil)
	}
}

// Meta implements bridge.Bridge.
func (m *Mock) Meta() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.meta)
}

// Report sends state through the pulled callback.
func (m *Mock) Report(state map[string]any) {
	m.mu.Lock()
	fn := m.pulled
	m.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// SetDiscovered implements bridge.Bridge.
func (m *Mock) SetDiscovered(fn func(bridge.Bridge)) {
	m.mu.Lock()
	m.discovered = fn
	m.mu.Unlock()
}

// SetPulled implements bridge.Bridge.
func (m *Mock) SetPulled(fn func(map[string]any)) {
	m.mu.Lock()
	m.pulled = fn
	m.mu.Unlock()
}

// Ignore implements bridge.Ignorer.
func (m *Mock) Ignore(instance bridge.Bridge) {
	m.mu.Lock()
	m.Ignored = append(m.Ignored, instance)
	m.mu.Unlock()
}

// Disconnect implements bridge.Disconnecter.
func (m *Mock) Disconnect() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Disconnected = true
	return m.SettleTime
}

// PushCount returns the number of Push calls.
func (m *Mock) PushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Pushes)
}

// LastPush returns the most recent pushed state.
func (m *Mock) LastPush() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Pushes) == 0 {
		return nil
	}
	return maps.Clone(m.Pushes[len(m.Pushes)-1].State)
}

// ConnectCount returns the number of Connect calls.
func (m *Mock) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Connects)
}

// Pulls returns the number of Pull calls.
func (m *Mock) Pulls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PullCalls
}
