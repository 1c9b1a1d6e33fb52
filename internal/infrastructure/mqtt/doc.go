// Package mqtt provides the broker connection shared by the MQTT record
// store and the MQTT bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained flags
//   - Wildcard subscriptions restored after reconnect
//   - A retained runner status topic with Last Will
//
// # Topics
//
// Devices speak the flat scheme graylogic/{category}/{protocol}/{device}
// where category is discovery, state, command, request or availability.
// The record store keeps one retained message per record band under
// graylogic/things/{id}/{band}.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllBridgeDiscovery("zigbee"), 1,
//	    func(topic string, payload []byte) error {
//	        return announce(mqtt.LastSegment(topic), payload)
//	    })
package mqtt
