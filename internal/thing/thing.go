package thing

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
)

// Band names.
const (
	BandMeta       = "meta"
	BandIState     = "istate"
	BandOState     = "ostate"
	BandConnection = "connection"
	BandModel      = "model"
)

// BandNames lists every band a Thing carries.
var BandNames = []string{BandMeta, BandIState, BandOState, BandConnection, BandModel}

// ModelAttributes is the model band key listing the attributes a Thing
// accepts in istate and ostate.
const ModelAttributes = "attributes"

// Thing is one logical, deduplicated device.
//
// Its id and bands never change after creation. The bridge slot is swapped
// by the manager when a reachable instance replaces an unreachable one.
type Thing struct {
	id        string
	modelCode string
	seq       int

	bands map[string]*Band

	mu     sync.RWMutex
	bridge bridge.Bridge
}

// New builds a Thing from binding band templates. istate, ostate and
// connection always start empty; meta and model are seeded from the
// templates when present.
func New(id, modelCode string, templates map[string]map[string]any) *Thing {
	t := &Thing{
		id:        id,
		modelCode: modelCode,
		bands:     make(map[string]*Band, len(BandNames)),
	}
	now := time.Now()
	for _, name := range BandNames {
		b := NewBand(name)
		switch name {
		case BandMeta, BandModel:
			if tmpl := templates[name]; len(tmpl) > 0 {
				b.replace(tmpl, now)
			}
		}
		t.bands[name] = b
	}
	return t
}

// ID returns the universal id.
func (t *Thing) ID() string {
	return t.id
}

// ModelCode returns the model code of the binding that built the Thing.
func (t *Thing) ModelCode() string {
	return t.modelCode
}

// Seq is the discovery order assigned by the manager, starting at 1.
func (t *Thing) Seq() int {
	return t.seq
}

// SetSeq is used by the manager when the Thing is registered.
func (t *Thing) SetSeq(seq int) {
	t.seq = seq
}

// Band returns the named band, or nil if the Thing has no such band.
func (t *Thing) Band(name string) *Band {
	return t.bands[name]
}

// State returns a snapshot of one band. Unknown bands yield nil.
func (t *Thing) State(band string) map[string]any {
	b := t.bands[band]
	if b == nil {
		return nil
	}
	return b.State()
}

// On registers fn for changes to band.
func (t *Thing) On(band string, fn func(Change)) (cancel func(), err error) {
	b := t.bands[band]
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBand, band)
	}
	return b.On(fn), nil
}

// Update applies values to band. With opts.Validate, keys the model does
// not declare are dropped first (annotations always pass).
func (t *Thing) Update(band string, values map[string]any, opts UpdateOptions) (UpdateResult, error) {
	b := t.bands[band]
	if b == nil {
		return UpdateResult{}, fmt.Errorf("%w: %q", ErrUnknownBand, band)
	}

	var invalid []string
	if opts.Validate {
		values, invalid = t.validate(values)
	}

	res := b.Update(values, opts)
	res.Invalid = invalid
	return res, nil
}

// validate keeps the keys declared under the model band's attributes.
// A model without attributes accepts everything.
func (t *Thing) validate(values map[string]any) (map[string]any, []string) {
	attrs, ok := t.bands[BandModel].State()[ModelAttributes].(map[string]any)
	if !ok || len(attrs) == 0 {
		return values, nil
	}

	kept := make(map[string]any, len(values))
	var invalid []string
	for k, v := range values {
		if _, declared := attrs[k]; declared || IsAnnotation(k) {
			kept[k] = v
		} else {
			invalid = append(invalid, k)
		}
	}
	return kept, invalid
}

// Bridge returns the bound bridge instance, or nil.
func (t *Thing) Bridge() bridge.Bridge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bridge
}

// SetBridge swaps the bound bridge instance.
func (t *Thing) SetBridge(b bridge.Bridge) {
	t.mu.Lock()
	t.bridge = b
	t.mu.Unlock()
}

// Reachable reports whether a bridge is bound and says it is reachable.
func (t *Thing) Reachable() bool {
	b := t.Bridge()
	return b != nil && b.Reachable()
}

// Disconnect disconnects the bound bridge when it supports it and
// returns its recommended settle time.
func (t *Thing) Disconnect() time.Duration {
	b := t.Bridge()
	if b == nil {
		return 0
	}
	if caps := bridge.CapabilitiesOf(b); caps.Disconnect != nil {
		return caps.Disconnect()
	}
	return 0
}

// String identifies the Thing in logs.
func (t *Thing) String() string {
	return t.id
}
