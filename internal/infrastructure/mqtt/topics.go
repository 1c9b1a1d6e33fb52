package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every runner topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{device}.
const TopicPrefix = "graylogic"

// DefaultRecordPrefix is the root of the MQTT record store.
const DefaultRecordPrefix = "graylogic/things"

// Topics provides builders for runner MQTT topics.
//
//	stateTopic := mqtt.Topics{}.BridgeState("zigbee", "lamp-01")
//	// Returns: "graylogic/state/zigbee/lamp-01"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeDiscovery is where a device announces itself (retained).
//
// Example: graylogic/discovery/zigbee/lamp-01
func (Topics) BridgeDiscovery(protocol, deviceID string) string {
	return fmt.Sprintf("%s/discovery/%s/%s", TopicPrefix, protocol, deviceID)
}

// AllBridgeDiscovery matches every announcement for one protocol.
//
// Pattern: graylogic/discovery/zigbee/+
func (Topics) AllBridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s/+", TopicPrefix, protocol)
}

// BridgeState carries device state reported by the device side.
//
// Example: graylogic/state/zigbee/lamp-01
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeCommand carries desired state to the device side.
//
// Example: graylogic/command/zigbee/lamp-01
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeRequest asks the device side to republish its state.
//
// Example: graylogic/request/zigbee/lamp-01
func (Topics) BridgeRequest(protocol, deviceID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeAvailability carries "online" or "offline" (retained).
//
// Example: graylogic/availability/zigbee/lamp-01
func (Topics) BridgeAvailability(protocol, deviceID string) string {
	return fmt.Sprintf("%s/availability/%s/%s", TopicPrefix, protocol, deviceID)
}

// =============================================================================
// Runner and Record Topics
// =============================================================================

// RunnerStatus is the retained online/offline status of one runner.
//
// Example: graylogic/runner/graylogic-things/status
func (Topics) RunnerStatus(clientID string) string {
	return fmt.Sprintf("%s/runner/%s/status", TopicPrefix, clientID)
}

// Record is the retained topic holding one band of one record.
//
// Example: graylogic/things/urn:graylogic:thing:lamp-v1:1234/istate
func (Topics) Record(prefix, id, band string) string {
	return prefix + "/" + id + "/" + band
}

// AllRecords matches every band of every record under prefix.
func (Topics) AllRecords(prefix string) string {
	return prefix + "/+/+"
}

// RecordParts splits a record topic into id and band.
// ok is false when topic is not directly under prefix.
func (Topics) RecordParts(prefix, topic string) (id, band string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	id, band, found = strings.Cut(rest, "/")
	if !found || id == "" || band == "" || strings.Contains(band, "/") {
		return "", "", false
	}
	return id, band, true
}

// LastSegment returns the part of topic after the final slash.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// Match reports whether topic matches a subscription pattern
// containing + (one level) and # (remaining levels) wildcards.
func Match(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")

	for i, p := range pp {
		switch {
		case p == "#":
			return true
		case i >= len(tp):
			return false
		case p == "+":
			continue
		case p != tp[i]:
			return false
		}
	}
	return len(pp) == len(tp)
}
