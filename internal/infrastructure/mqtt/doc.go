// Package mqtt provides MQTT client connectivity for govee2mqtt.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS and retain control
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament on the service status topic
//   - The topic grammar shared with Home Assistant
//
// # Topic Layout
//
//	<prefix>/status/status                         bridge online/offline (LWT)
//	<prefix>/service/<key>                         service state
//	<prefix>/service/<key>/set                     service commands
//	<prefix>/devices/<prefix>_<ID>/<category>      entity state (JSON)
//	<prefix>/devices/<prefix>_<ID>/availability    entity availability
//	<prefix>/light/<prefix>_<ID>/set               light commands
//	<prefix>/switch/<prefix>_<ID>/<mode>/set       mode switch commands
//	<discovery_prefix>/<component>/<slug>/config   discovery (retained)
//	<discovery_prefix>/status                      Home Assistant birth message
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	for _, pattern := range client.Topics().CommandSubscriptions() {
//	    client.Subscribe(pattern, 0, handler)
//	}
package mqtt
