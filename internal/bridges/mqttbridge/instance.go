package mqttbridge

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Instance is one announced device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Instance struct {
	client   Client
	logger   Logger
	protocol string
	deviceID string

	mu        sync.Mutex
	qos       byte
	meta      map[string]any
	reachable bool
	connected bool
	pulled    func(map[string]any)
}

var (
	_ bridge.Bridge       = (*Instance)(nil)
	_ bridge.Disconnecter = (*Instance)(nil)
)

// DeviceID returns the device id from the announcement.
func (i *Instance) DeviceID() string {
	return i.deviceID
}

// Discover is a no-op for instances.
func (i *Instance) Discover() {}

// Connect subscribes to the device's state and availability topics.
// A qos parameter overrides the exemplar's.
func (i *Instance) Connect(params map[string]any) {
	i.mu.Lock()
	if i.connected {
		i.mu.Unlock()
		return
	}
	qos, err := qosParam(params, i.qos)
	if err != nil {
		i.logger.Warn("ignoring connect parameter", "device_id", i.deviceID, "error", err)
		qos = i.qos
	}
	i.qos = qos
	i.connected = true
	i.mu.Unlock()

	t := mqtt.Topics{}
	if err := i.client.Subscribe(t.BridgeAvailability(i.protocol, i.deviceID), qos, i.handleAvailability); err != nil {
		i.logger.Warn("subscribing to availability failed", "device_id", i.deviceID, "error", err)
	}
	if err := i.client.Subscribe(t.BridgeState(i.protocol, i.deviceID), qos, i.handleState); err != nil {
		i.logger.Warn("subscribing to state failed", "device_id", i.deviceID, "error", err)
	}
}

func (i *Instance) handleState(topic string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var state map[string]any
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decoding state on %s: %w", topic, err)
	}
	if state == nil {
		return nil
	}

	i.mu.Lock()
	fn := i.pulled
	i.mu.Unlock()
	if fn != nil {
		fn(state)
	}
	return nil
}

func (i *Instance) handleAvailability(topic string, payload []byte) error {
	var reachable bool
	switch string(payload) {
	case payloadOnline:
		reachable = true
	case payloadOffline, "":
		reachable = false
	default:
		return fmt.Errorf("unexpected availability %q on %s", payload, topic)
	}

	i.mu.Lock()
	changed := i.reachable != reachable
	i.reachable = reachable
	fn := i.pulled
	i.mu.Unlock()

	if changed && fn != nil {
		fn(nil)
	}
	return nil
}

// announced merges metadata from a repeated announcement.
func (i *Instance) announced(meta map[string]any) {
	i.mu.Lock()
	changed := !thing.Equal(thing.Defaults(i.meta, meta), i.meta)
	if changed {
		i.meta = thing.Defaults(i.meta, meta)
	}
	fn := i.pulled
	i.mu.Unlock()

	if changed && fn != nil {
		fn(nil)
	}
}

// Pull asks the device to republish its state.
func (i *Instance) Pull() {
	i.mu.Lock()
	qos := i.qos
	i.mu.Unlock()

	topic := mqtt.Topics{}.BridgeRequest(i.protocol, i.deviceID)
	if err := i.client.Publish(topic, []byte("{}"), qos, false); err != nil {
		i.logger.Warn("requesting state failed", "device_id", i.deviceID, "error", err)
	}
}

// Push publishes state to the command topic.
func (i *Instance) Push(state map[string]any, done func(error)) {
	err := i.push(state)
	if done != nil {
		done(err)
	}
}

func (i *Instance) push(state map[string]any) error {
	i.mu.Lock()
	connected, qos := i.connected, i.qos
	i.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	if err := i.client.Publish(mqtt.Topics{}.BridgeCommand(i.protocol, i.deviceID), payload, qos, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}
	return nil
}

// Reachable reports the last availability seen.
func (i *Instance) Reachable() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.reachable
}

// Meta returns the announced metadata with the device id and protocol.
func (i *Instance) Meta() map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := maps.Clone(i.meta)
	if out == nil {
		out = make(map[string]any, 2)
	}
	out[thing.MetaDeviceID] = i.deviceID
	out[MetaProtocol] = i.protocol
	return out
}

// SetDiscovered implements bridge.Bridge. Instances never discover.
func (i *Instance) SetDiscovered(func(bridge.Bridge)) {}

// SetPulled implements bridge.Bridge.
func (i *Instance) SetPulled(fn func(map[string]any)) {
	i.mu.Lock()
	i.pulled = fn
	i.mu.Unlock()
}

// Disconnect drops the device subscriptions.
func (i *Instance) Disconnect() time.Duration {
	i.mu.Lock()
	connected := i.connected
	i.connected = false
	i.mu.Unlock()
	if !connected {
		return 0
	}

	t := mqtt.Topics{}
	for _, topic := range []string{t.BridgeAvailability(i.protocol, i.deviceID), t.BridgeState(i.protocol, i.deviceID)} {
		if err := i.client.Unsubscribe(topic); err != nil {
			i.logger.Warn("unsubscribing failed", "topic", topic, "error", err)
		}
	}
	return 0
}
