// Package mqttbridge implements a generic bridge for devices that talk
// the runner's flat MQTT topic scheme.
//
// # Topics
//
// For a protocol such as "zigbee" and a device "lamp-01":
//
//	graylogic/discovery/zigbee/lamp-01     retained announcement
//	graylogic/state/zigbee/lamp-01         reported state (JSON object)
//	graylogic/availability/zigbee/lamp-01  "online" or "offline" (retained)
//	graylogic/command/zigbee/lamp-01       desired state (JSON object)
//	graylogic/request/zigbee/lamp-01       asks the device to republish
//
// An announcement looks like:
//
//	{"device_id": "lamp-01", "meta": {"schema:name": "Hall lamp"}, "available": true}
//
// device_id defaults to the last topic segment; available defaults to true.
//
// # Roles
//
// The exemplar built by Factory subscribes to the protocol's discovery
// topics when Discover runs and reports one instance per device. An
// instance subscribes to its state and availability topics on Connect.
//
// Handlers run on the MQTT client's delivery goroutine.
//
// Usage:
//
//	factories := map[string]bridge.Factory{mqttbridge.Kind: mqttbridge.Factory(client, logger)}
//	registry, err := bridge.LoadCatalog("configs/bindings.yaml", factories)
package mqttbridge
