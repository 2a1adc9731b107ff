// Package mqtt wraps paho.mqtt.golang for the bridge's broker session.
//
// The receiver surfaces over three topic families: retained state
// topics mirroring each property, command topics accepting control
// payloads, and a system status topic carrying process liveness via
// the Last Will and Testament.
//
//	Home automation <-> MQTT broker <-> avrbridge <-> receiver
//
// The client restores subscriptions after reconnects, recovers from
// handler panics, and publishes online/offline status itself.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.AllCommands(), 1, handleCommand)
//	client.PublishRetained(mqtt.Topics{}.State("power"), payload)
//
// Production deployments should set broker.tls; anonymous plaintext
// access is for local development only.
package mqtt
