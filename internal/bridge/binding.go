package bridge

import (
	"fmt"
	"sync"
)

// Binding ties a model code to an adapter and its defaults.
type Binding struct {
	// ModelCode is the dash-cased model identifier, e.g. "lamp-v1".
	ModelCode string

	// Bridge names the adapter kind, for listings and logs.
	Bridge string

	// New builds the exemplar.
	New Factory

	// Init holds default init parameters; caller init overrides them.
	Init map[string]any

	// Bands holds band templates, keyed by band name. Only meta and model
	// are copied into new Things; state bands start empty.
	Bands map[string]map[string]any

	// Match, when set, must be contained in an instance's compacted
	// metadata for the instance to be accepted.
	Match map[string]any

	// ConnectParams are merged with the Thing's meta and passed to Connect.
	ConnectParams map[string]any

	// SkipDiscovery excludes the binding from "probe everything" sessions.
	// It can still be selected by model code.
	SkipDiscovery bool
}

// Validate checks the fields the manager relies on.
func (b Binding) Validate() error {
	if b.ModelCode == "" {
		return fmt.Errorf("%w: model code is required", ErrInvalidBinding)
	}
	if b.New == nil {
		return fmt.Errorf("%w: %s has no factory", ErrInvalidBinding, b.ModelCode)
	}
	return nil
}

// Registry supplies bindings in priority order.
type Registry interface {
	Bindings() []Binding
}

// StaticRegistry is an in-memory Registry.
//
// Thread Safety:
//   - Safe for concurrent use.
type StaticRegistry struct {
	mu       sync.RWMutex
	bindings []Binding
}

// NewStaticRegistry returns a registry holding bindings in the given order.
func NewStaticRegistry(bindings ...Binding) (*StaticRegistry, error) {
	r := &StaticRegistry{}
	for _, b := range bindings {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a binding.
func (r *StaticRegistry) Register(b Binding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.bindings = append(r.bindings, b)
	r.mu.Unlock()
	return nil
}

// Bindings returns a copy of the registered bindings.
func (r *StaticRegistry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Binding(nil), r.bindings...)
}
