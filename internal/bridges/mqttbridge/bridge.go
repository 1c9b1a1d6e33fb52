package mqttbridge

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/mqtt"
)

// Kind is the bridge name used in binding catalogs.
const Kind = "mqtt"

// Init and connect parameter keys.
const (
	ParamProtocol = "protocol"
	ParamQoS      = "qos"
)

const (
	// defaultProtocol is used when init carries no protocol.
	defaultProtocol = "generic"

	// MetaProtocol records the protocol segment in instance metadata.
	MetaProtocol = "iot:protocol"

	// exemplarSettle is how long callers should wait after Disconnect for
	// in-flight publishes to leave the client.
	exemplarSettle = 250 * time.Millisecond

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Client is the subset of *mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// announcement is the retained discovery payload.
type announcement struct {
	DeviceID  string         `json:"device_id"`
	Meta      map[string]any `json:"meta"`
	Available *bool          `json:"available"`
}

// Factory returns a bridge.Factory building exemplars on client. A nil
// logger discards log output.
func Factory(client Client, logger Logger) bridge.Factory {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(init map[string]any) (bridge.Bridge, error) {
		protocol, err := protocolParam(init)
		if err != nil {
			return nil, err
		}
		qos, err := qosParam(init, 0)
		if err != nil {
			return nil, err
		}
		return &Exemplar{
			client:    client,
			logger:    logger,
			protocol:  protocol,
			qos:       qos,
			instances: make(map[string]*Instance),
			ignored:   make(map[string]bool),
		}, nil
	}
}

func protocolParam(init map[string]any) (string, error) {
	raw, ok := init[ParamProtocol]
	if !ok || raw == nil {
		return defaultProtocol, nil
	}
	protocol, ok := raw.(string)
	if !ok || protocol == "" || strings.ContainsAny(protocol, "/+#") {
		return "", fmt.Errorf("%w: protocol must be a single topic level, got %v", ErrInvalidInit, raw)
	}
	return protocol, nil
}

func qosParam(params map[string]any, def byte) (byte, error) {
	raw, ok := params[ParamQoS]
	if !ok || raw == nil {
		return def, nil
	}
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
		if float64(n) != v {
			return 0, fmt.Errorf("%w: qos must be 0, 1 or 2, got %v", ErrInvalidInit, raw)
		}
	default:
		return 0, fmt.Errorf("%w: qos must be 0, 1 or 2, got %v", ErrInvalidInit, raw)
	}
	if n < 0 || n > 2 {
		return 0, fmt.Errorf("%w: qos must be 0, 1 or 2, got %v", ErrInvalidInit, raw)
	}
	return byte(n), nil
}

// Exemplar discovers devices announced for one protocol.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Exemplar struct {
	client   Client
	logger   Logger
	protocol string
	qos      byte

	mu         sync.Mutex
	discovered func(bridge.Bridge)
	subscribed bool
	instances  map[string]*Instance
	ignored    map[string]bool
}

var (
	_ bridge.Bridge       = (*Exemplar)(nil)
	_ bridge.Ignorer      = (*Exemplar)(nil)
	_ bridge.Disconnecter = (*Exemplar)(nil)
)

// Protocol returns the protocol topic segment.
func (e *Exemplar) Protocol() string {
	return e.protocol
}

// Discover subscribes to the protocol's announcements. Retained
// announcements are reported straight away; later ones as they arrive.
func (e *Exemplar) Discover() {
	e.mu.Lock()
	if e.subscribed {
		e.mu.Unlock()
		return
	}
	e.subscribed = true
	e.mu.Unlock()

	topic := mqtt.Topics{}.AllBridgeDiscovery(e.protocol)
	if err := e.client.Subscribe(topic, e.qos, e.handleAnnouncement); err != nil {
		e.mu.Lock()
		e.subscribed = false
		e.mu.Unlock()
		e.logger.Warn("subscribing to discovery failed", "topic", topic, "error", err)
	}
}

func (e *Exemplar) handleAnnouncement(topic string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	var ann announcement
	if err := json.Unmarshal(payload, &ann); err != nil {
		return fmt.Errorf("decoding announcement on %s: %w", topic, err)
	}
	if ann.DeviceID == "" {
		ann.DeviceID = mqtt.LastSegment(topic)
	}
	if ann.DeviceID == "" || strings.ContainsAny(ann.DeviceID, "/+#") {
		return fmt.Errorf("announcement on %s has invalid device id %q", topic, ann.DeviceID)
	}
	available := ann.Available == nil || *ann.Available

	e.mu.Lock()
	if e.ignored[ann.DeviceID] {
		e.mu.Unlock()
		return nil
	}
	if existing, ok := e.instances[ann.DeviceID]; ok {
		e.mu.Unlock()
		existing.announced(ann.Meta)
		return nil
	}
	inst := &Instance{
		client:    e.client,
		logger:    e.logger,
		protocol:  e.protocol,
		deviceID:  ann.DeviceID,
		qos:       e.qos,
		meta:      maps.Clone(ann.Meta),
		reachable: available,
	}
	e.instances[ann.DeviceID] = inst
	fn := e.discovered
	e.mu.Unlock()

	e.logger.Debug("device announced", "protocol", e.protocol, "device_id", ann.DeviceID)
	if fn != nil {
		fn(inst)
	}
	return nil
}

// Connect is a no-op for the exemplar.
func (e *Exemplar) Connect(map[string]any) {}

// Pull is a no-op for the exemplar.
func (e *Exemplar) Pull() {}

// Push completes immediately; the exemplar has no device.
func (e *Exemplar) Push(_ map[string]any, done func(error)) {
	if done != nil {
		done(nil)
	}
}

// Reachable reports whether the discovery subscription is active.
func (e *Exemplar) Reachable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscribed
}

// Meta implements bridge.Bridge.
func (e *Exemplar) Meta() map[string]any {
	return map[string]any{MetaProtocol: e.protocol}
}

// SetDiscovered implements bridge.Bridge.
func (e *Exemplar) SetDiscovered(fn func(bridge.Bridge)) {
	e.mu.Lock()
	e.discovered = fn
	e.mu.Unlock()
}

// SetPulled implements bridge.Bridge. The exemplar never reports state.
func (e *Exemplar) SetPulled(func(map[string]any)) {}

// Ignore stops reporting a device rejected by the binding's match filter.
func (e *Exemplar) Ignore(instance bridge.Bridge) {
	inst, ok := instance.(*Instance)
	if !ok {
		return
	}
	e.mu.Lock()
	e.ignored[inst.deviceID] = true
	delete(e.instances, inst.deviceID)
	e.mu.Unlock()
}

// Disconnect drops the discovery subscription and every instance
// subscription.
func (e *Exemplar) Disconnect() time.Duration {
	e.mu.Lock()
	subscribed := e.subscribed
	e.subscribed = false
	instances := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		instances = append(instances, inst)
	}
	e.mu.Unlock()

	if subscribed {
		topic := mqtt.Topics{}.AllBridgeDiscovery(e.protocol)
		if err := e.client.Unsubscribe(topic); err != nil {
			e.logger.Warn("unsubscribing from discovery failed", "topic", topic, "error", err)
		}
	}
	for _, inst := range instances {
		inst.Disconnect()
	}
	return exemplarSettle
}
