package bridge

import "errors"

var (
	// ErrInvalidBinding is returned for bindings missing required fields.
	ErrInvalidBinding = errors.New("bridge: invalid binding")

	// ErrUnknownBridge is returned when a catalog names an adapter kind
	// with no registered factory.
	ErrUnknownBridge = errors.New("bridge: unknown bridge kind")

	// ErrCatalog wraps catalog read and parse failures.
	ErrCatalog = errors.New("bridge: invalid catalog")
)
