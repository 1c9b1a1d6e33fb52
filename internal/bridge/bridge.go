package bridge

import "time"

// Bridge is a device adapter, in either the exemplar or instance role.
//
// Callbacks may be invoked from any goroutine. Implementations must not
// block inside Discover, Connect, Pull or Push; completion is reported
// through callbacks.
type Bridge interface {
	// Discover starts looking for devices. Each one found is reported
	// through the discovered callback as a new instance.
	Discover()

	// Connect opens the device link with merged connection parameters.
	Connect(params map[string]any)

	// Pull asks the device to report its current state.
	Pull()

	// Push delivers desired state. done is called once delivery finished.
	Push(state map[string]any, done func(error))

	// Reachable reports whether the device currently answers.
	Reachable() bool

	// Meta returns the instance's descriptive metadata.
	Meta() map[string]any

	// SetDiscovered assigns the callback used by Discover.
	SetDiscovered(fn func(instance Bridge))

	// SetPulled assigns the callback for reported state. A nil state
	// means "metadata or reachability changed, refresh it".
	SetPulled(fn func(state map[string]any))
}

// Ignorer is implemented by exemplars that want to hear about instances
// rejected by the binding's match filter.
type Ignorer interface {
	Ignore(instance Bridge)
}

// Disconnecter is implemented by bridges that hold resources. The returned
// duration is how long the caller should wait before exiting.
type Disconnecter interface {
	Disconnect() time.Duration
}

// Capabilities holds the optional operations a bridge supports.
// A nil field means the bridge does not support that operation.
type Capabilities struct {
	Ignore     func(instance Bridge)
	Disconnect func() time.Duration
}

// CapabilitiesOf resolves the optional interfaces b implements.
func CapabilitiesOf(b Bridge) Capabilities {
	var caps Capabilities
	if i, ok := b.(Ignorer); ok {
		caps.Ignore = i.Ignore
	}
	if d, ok := b.(Disconnecter); ok {
		caps.Disconnect = d.Disconnect
	}
	return caps
}

// Factory builds an exemplar from merged init parameters.
type Factory func(init map[string]any) (Bridge, error)
