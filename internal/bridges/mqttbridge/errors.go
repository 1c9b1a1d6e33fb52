package mqttbridge

import "errors"

// Domain errors for the MQTT bridge package.
var (
	// ErrInvalidInit is returned by the factory when init parameters
	// cannot be used.
	ErrInvalidInit = errors.New("mqttbridge: invalid init parameters")

	// ErrNotConnected is reported to Push callbacks before Connect.
	ErrNotConnected = errors.New("mqttbridge: instance not connected")
)
