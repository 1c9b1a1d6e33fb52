package mirror

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/runloop"
	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Engine mirrors Things through record stores.
type Engine struct {
	loop   *runloop.Loop
	logger Logger
}

// NewEngine creates an engine that applies received values on loop.
func NewEngine(loop *runloop.Loop) *Engine {
	return &Engine{loop: loop, logger: noopLogger{}}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// WireThings mirrors every current and future member of set through store
// until ctx is done.
func (e *Engine) WireThings(ctx context.Context, store transport.Transport, set *thing.Set, policy ThingPolicy) error {
	w := &wiring{
		engine:   e,
		store:    store,
		policy:   policy,
		lastSent: make(map[sentKey]map[string]any),
	}
	cancel := set.Each(func(t *thing.Thing) {
		e.loop.Post(func() {
			if ctx.Err() == nil {
				w.attach(ctx, t)
			}
		})
	})
	context.AfterFunc(ctx, cancel)
	return nil
}

type sentKey struct {
	id   string
	band string
}

// wiring is one (store, Set, policy) association.
type wiring struct {
	engine *Engine
	store  transport.Transport
	policy ThingPolicy

	mu       sync.Mutex
	lastSent map[sentKey]map[string]any
}

// attach wires one Thing. Runs on the loop.
func (w *wiring) attach(ctx context.Context, t *thing.Thing) {
	p := w.policy

	if p.Model.Send {
		if model := thing.Compact(t.State(thing.BandModel)); len(model) > 0 {
			w.send(ctx, t, thing.BandModel, model)
		}
	}

	if p.Meta.Send {
		w.on(ctx, t, thing.BandMeta, func(c thing.Change) {
			changed := thing.CloneMap(c.Changed)
			changed[thing.AnnotationTimestamp] = thing.FormatTimestamp(c.Timestamp)
			w.send(ctx, t, thing.BandMeta, changed)
		})
	}
	if p.Meta.Receive {
		w.receive(ctx, t, thing.BandMeta, true, func(values map[string]any) {
			values, ts := thing.SplitTimestamp(values)
			res, _ := t.Update(thing.BandMeta, values, thing.UpdateOptions{Timestamp: ts, CheckTimestamp: true})
			if staleErr := res.StaleErr(); staleErr != nil {
				w.engine.logger.Debug("stored meta partly dropped", "thing_id", t.ID(), "error", staleErr)
			}
		})
	}

	if p.OState.Send {
		if state := t.State(thing.BandOState); len(state) > 0 {
			w.send(ctx, t, thing.BandOState, state)
		}
		w.on(ctx, t, thing.BandOState, func(c thing.Change) {
			w.send(ctx, t, thing.BandOState, c.State)
		})
	}
	if p.OState.Receive {
		w.receive(ctx, t, thing.BandOState, false, func(values map[string]any) {
			t.Update(thing.BandOState, values, thing.UpdateOptions{})
		})
	}

	if p.IState.Send {
		if state := t.State(thing.BandIState); len(state) > 0 {
			w.send(ctx, t, thing.BandIState, state)
		}
		w.on(ctx, t, thing.BandIState, func(c thing.Change) {
			w.send(ctx, t, thing.BandIState, c.State)
		})
	}
	if p.IState.Receive {
		w.receive(ctx, t, thing.BandIState, false, func(values map[string]any) {
			t.Update(thing.BandIState, values, thing.UpdateOptions{Validate: true, Silent: true})
		})
	}
}

// on subscribes fn to band changes until ctx is done.
func (w *wiring) on(ctx context.Context, t *thing.Thing, band string, fn func(thing.Change)) {
	cancel, err := t.On(band, func(c thing.Change) {
		if ctx.Err() == nil {
			fn(c)
		}
	})
	if err != nil {
		w.engine.logger.Warn("watching band failed", "thing_id", t.ID(), "band", band, "error", err)
		return
	}
	context.AfterFunc(ctx, cancel)
}

// send writes value and remembers it for echo suppression.
func (w *wiring) send(ctx context.Context, t *thing.Thing, band string, value map[string]any) {
	w.mu.Lock()
	w.lastSent[sentKey{t.ID(), band}] = thing.CloneMap(value)
	w.mu.Unlock()

	if err := w.store.Update(ctx, t.ID(), band, value); err != nil {
		w.engine.logger.Warn("mirroring band to store failed",
			"thing_id", t.ID(),
			"band", band,
			"error", err,
		)
	}
}

// isEcho reports whether value is what this wiring last sent for the
// band. A match consumes the marker, so the same value arriving again
// later is a new write, not an echo.
func (w *wiring) isEcho(id, band string, value map[string]any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := sentKey{id, band}
	last, ok := w.lastSent[key]
	if !ok || !thing.Equal(last, value) {
		return false
	}
	delete(w.lastSent, key)
	return true
}

// receive subscribes to store changes of band and applies them on the
// loop. With initial, the current stored value is fetched first.
//
// An OnDemand notification triggers one explicit Get. The Get answer is
// applied only when Available; a record still OnDemand or Missing is
// skipped.
func (w *wiring) receive(ctx context.Context, t *thing.Thing, band string, initial bool, apply func(map[string]any)) {
	id := t.ID()

	deliver := func(rec transport.Record) {
		value := thing.CloneMap(rec.Value)
		w.engine.loop.Post(func() {
			if ctx.Err() != nil || w.isEcho(id, band, value) {
				return
			}
			apply(value)
		})
	}
	fetched := func(rec transport.Record) {
		if rec.Status == transport.Available {
			deliver(rec)
		}
	}
	fetch := func() {
		if err := w.store.Get(ctx, id, band, fetched); err != nil {
			w.engine.logger.Warn("fetching record failed", "thing_id", id, "band", band, "error", err)
		}
	}

	if initial {
		fetch()
	}
	err := w.store.Updated(ctx, id, band, func(rec transport.Record) {
		switch rec.Status {
		case transport.Available:
			deliver(rec)
		case transport.OnDemand:
			fetch()
		}
	})
	if err != nil {
		w.engine.logger.Warn("subscribing to record failed", "thing_id", id, "band", band, "error", err)
	}
}
