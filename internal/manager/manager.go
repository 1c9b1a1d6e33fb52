package manager

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/notify"
	"github.com/nerrad567/gray-logic-things/internal/runloop"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Logger defines the logging interface used by the Manager.
// This allows for easy testing and decoupling from specific logger implementations.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session describes one enqueued discovery request.
type Session struct {
	// ModelCode is the requested model code, or empty for "everything".
	ModelCode string

	// Things is the Set returned by Connect.
	Things *thing.Set
}

// Manager discovers Things and arbitrates bridge ownership.
//
// Thread Safety:
//   - Connect, Things, Disconnect and the subscription methods are safe
//     for concurrent use.
//   - Discovery and binding state is only mutated from loop tasks.
type Manager struct {
	loop     *runloop.Loop
	registry bridge.Registry
	runnerID string
	logger   Logger

	mu        sync.RWMutex
	things    map[string]*thing.Thing
	exemplars []bridge.Bridge
	seq       int

	shuttingDown atomic.Bool

	discovered notify.Hub[*thing.Thing]
	enqueued   notify.Hub[Session]
}

// New creates a manager drawing bindings from registry. runnerID scopes
// universal Thing ids to this runner.
func New(loop *runloop.Loop, registry bridge.Registry, runnerID string) *Manager {
	return &Manager{
		loop:     loop,
		registry: registry,
		runnerID: runnerID,
		logger:   noopLogger{},
		things:   make(map[string]*thing.Thing),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Loop returns the run loop the manager posts to.
func (m *Manager) Loop() *runloop.Loop {
	return m.loop
}

// Connect starts a discovery session and returns its Set.
//
// The returned Set is always empty; bindings are probed on a later loop
// turn. An error is returned only for malformed arguments, in which case
// nothing is scheduled.
func (m *Manager) Connect(spec any, init, meta map[string]any) (*thing.Set, error) {
	req, err := normalize(spec, init)
	if err != nil {
		return nil, err
	}

	set := thing.NewSet()
	meta = thing.CloneMap(meta)
	m.loop.Post(func() {
		m.enqueue(req, meta, set)
	})
	return set, nil
}

// Things returns a Set holding every known Thing. Things discovered later
// are added to it as well.
func (m *Manager) Things() *thing.Set {
	set := thing.NewSet()
	m.discovered.Subscribe(func(t *thing.Thing) { set.Add(t) })

	for _, t := range m.snapshot() {
		set.Add(t)
	}
	return set
}

// Thing returns the Thing with the given universal id, or nil.
func (m *Manager) Thing(id string) *thing.Thing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.things[id]
}

// OnDiscovered registers fn for every newly created Thing.
func (m *Manager) OnDiscovered(fn func(*thing.Thing)) (cancel func()) {
	return m.discovered.Subscribe(fn)
}

// OnEnqueued registers fn for every discovery session once its bindings
// have been probed.
func (m *Manager) OnEnqueued(fn func(Session)) (cancel func()) {
	return m.enqueued.Subscribe(fn)
}

// Disconnect stops accepting new instances, disconnects every exemplar
// and every bound bridge that supports it, and returns the summed settle
// time the caller should wait before exiting.
func (m *Manager) Disconnect() time.Duration {
	m.shuttingDown.Store(true)

	m.mu.RLock()
	exemplars := append([]bridge.Bridge(nil), m.exemplars...)
	m.mu.RUnlock()

	var wait time.Duration
	for _, ex := range exemplars {
		if caps := bridge.CapabilitiesOf(ex); caps.Disconnect != nil {
			wait += caps.Disconnect()
		}
	}
	for _, t := range m.snapshot() {
		wait += t.Disconnect()
	}

	m.logger.Info("manager disconnected",
		"exemplars", len(exemplars),
		"settle", wait,
	)
	return wait
}

// snapshot returns the known Things in discovery order.
func (m *Manager) snapshot() []*thing.Thing {
	m.mu.RLock()
	things := make([]*thing.Thing, 0, len(m.things))
	for _, t := range m.things {
		things = append(things, t)
	}
	m.mu.RUnlock()

	slices.SortFunc(things, func(a, b *thing.Thing) int {
		return cmp.Compare(a.Seq(), b.Seq())
	})
	return things
}
