package manager

import (
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// enqueue probes the bindings selected by req. Runs on the loop.
func (m *Manager) enqueue(req request, meta map[string]any, set *thing.Set) {
	probed := 0
	for _, b := range m.registry.Bindings() {
		if req.modelCode != "" {
			if thing.DashCase(b.ModelCode) != req.modelCode {
				continue
			}
		} else if b.SkipDiscovery {
			continue
		}

		if m.probe(b, req.init, meta, set) {
			probed++
		}
		// One binding per requested model code.
		if req.modelCode != "" {
			break
		}
	}

	if req.modelCode != "" && probed == 0 {
		m.logger.Error("no binding for model code",
			"model_code", req.modelCode,
			"error", ErrNoMatchingBinding,
		)
	}

	m.enqueued.Emit(Session{ModelCode: req.modelCode, Things: set})
}

// probe builds the binding's exemplar and schedules its discovery.
func (m *Manager) probe(b bridge.Binding, init, meta map[string]any, set *thing.Set) bool {
	exemplar, err := b.New(thing.Defaults(b.Init, init))
	if err != nil {
		m.logger.Error("creating bridge exemplar failed",
			"model_code", b.ModelCode,
			"bridge", b.Bridge,
			"error", err,
		)
		return false
	}

	m.mu.Lock()
	m.exemplars = append(m.exemplars, exemplar)
	m.mu.Unlock()

	exemplar.SetDiscovered(func(instance bridge.Bridge) {
		if m.shuttingDown.Load() {
			return
		}
		m.loop.Post(func() {
			m.found(b, exemplar, instance, meta, set)
		})
	})

	m.logger.Debug("probing binding", "model_code", b.ModelCode, "bridge", b.Bridge)
	m.loop.Post(exemplar.Discover)
	return true
}

// found handles one instance reported by an exemplar. Runs on the loop.
func (m *Manager) found(b bridge.Binding, exemplar, instance bridge.Bridge, meta map[string]any, set *thing.Set) {
	if m.shuttingDown.Load() {
		return
	}

	bridgeMeta := thing.Compact(instance.Meta())
	if len(b.Match) > 0 && !thing.Contains(bridgeMeta, thing.Compact(b.Match)) {
		if caps := bridge.CapabilitiesOf(exemplar); caps.Ignore != nil {
			caps.Ignore(instance)
		}
		return
	}

	modelCode := thing.DashCase(b.ModelCode)
	id := thing.MakeID(thing.LocalID(bridgeMeta), modelCode, m.runnerID)

	m.mu.RLock()
	existing := m.things[id]
	m.mu.RUnlock()

	switch {
	case existing == nil:
		m.register(b, id, modelCode, instance, bridgeMeta, meta, set)
	case existing.Reachable():
		m.logger.Debug("discarding instance, thing already reachable", "thing_id", id)
	case !instance.Reachable():
		m.logger.Debug("discarding unreachable instance", "thing_id", id)
	default:
		m.logger.Info("rebinding thing to reachable instance", "thing_id", id)
		m.bind(existing, instance, b)
	}
}

// register creates, binds and announces a new Thing. Runs on the loop.
func (m *Manager) register(b bridge.Binding, id, modelCode string, instance bridge.Bridge, bridgeMeta, meta map[string]any, set *thing.Set) {
	templates := make(map[string]map[string]any, len(b.Bands))
	for name, tmpl := range b.Bands {
		templates[name] = thing.CloneMap(tmpl)
	}
	templates[thing.BandMeta] = thing.Defaults(b.Bands[thing.BandMeta], bridgeMeta, meta)

	t := thing.New(id, modelCode, templates)

	m.mu.Lock()
	m.seq++
	t.SetSeq(m.seq)
	m.things[id] = t
	m.mu.Unlock()

	m.bind(t, instance, b)

	if len(meta) > 0 {
		if _, err := t.Update(thing.BandMeta, meta, thing.UpdateOptions{}); err != nil {
			m.logger.Warn("applying caller metadata failed", "thing_id", id, "error", err)
		}
	}

	set.Add(t)
	m.logger.Info("thing discovered",
		"thing_id", id,
		"model_code", modelCode,
		"seq", t.Seq(),
	)
	m.discovered.Emit(t)
}

// bind makes instance the bridge of t and wires both directions.
// Runs on the loop.
func (m *Manager) bind(t *thing.Thing, instance bridge.Bridge, b bridge.Binding) {
	t.SetBridge(instance)

	instance.SetPulled(func(state map[string]any) {
		state = thing.CloneMap(state)
		m.loop.Post(func() {
			m.pulled(t, instance, state)
		})
	})

	m.watchOState(t, instance)

	m.refresh(t, instance)
	instance.Connect(thing.Defaults(b.ConnectParams, t.State(thing.BandMeta)))
	instance.Pull()
}

// watchOState forwards desired state to instance until t is rebound.
func (m *Manager) watchOState(t *thing.Thing, instance bridge.Bridge) {
	var (
		cancel   func()
		detached bool
	)
	cancel, err := t.On(thing.BandOState, func(c thing.Change) {
		if detached {
			return
		}
		if t.Bridge() != instance {
			detached = true
			if cancel != nil {
				cancel()
			}
			return
		}

		out := pushable(c.State)
		if len(out) == 0 {
			return
		}
		instance.Push(out, func(err error) {
			m.loop.Post(func() {
				if err != nil {
					m.logger.Warn("push failed", "thing_id", t.ID(), "error", err)
				}
				t.Band(thing.BandOState).Clear()
			})
		})
	})
	if err != nil {
		m.logger.Error("watching ostate failed", "thing_id", t.ID(), "error", err)
	}
}

// pushable drops nil values and annotations.
func pushable(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		if v == nil || thing.IsAnnotation(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// pulled applies a bridge report. Reports from a bridge that no longer
// owns t are ignored. Runs on the loop.
func (m *Manager) pulled(t *thing.Thing, instance bridge.Bridge, state map[string]any) {
	if t.Bridge() != instance {
		return
	}
	if state == nil {
		m.refresh(t, instance)
		return
	}

	values, ts := thing.SplitTimestamp(state)
	res, err := t.Update(thing.BandIState, values, thing.UpdateOptions{
		Timestamp:      ts,
		CheckTimestamp: true,
	})
	if err != nil {
		m.logger.Warn("applying bridge state failed", "thing_id", t.ID(), "error", err)
		return
	}
	if staleErr := res.StaleErr(); staleErr != nil {
		m.logger.Debug("bridge state partly dropped", "thing_id", t.ID(), "error", staleErr)
	}
}

// refresh copies reachability and bridge metadata into t.
func (m *Manager) refresh(t *thing.Thing, instance bridge.Bridge) {
	now := time.Now()

	t.Update(thing.BandConnection, map[string]any{
		thing.ConnectionReachable: instance.Reachable(),
	}, thing.UpdateOptions{Timestamp: now})

	meta := thing.Compact(instance.Meta())
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[thing.MetaThingID] = t.ID()
	meta[thing.MetaModelID] = t.ModelCode()
	t.Update(thing.BandMeta, meta, thing.UpdateOptions{Timestamp: now})
}
