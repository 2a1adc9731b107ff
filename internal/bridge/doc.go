// Package bridge translates between the receiver control session and MQTT.
//
// Inbound, it subscribes to command topics and maps plain-text payloads
// onto the typed client API (power, volume, attenuation, mute, input,
// refresh). Outbound, it watches the state mirror and publishes every
// transition as a retained JSON state message, records it in the optional
// history repository, and emits a telemetry point through the optional
// metrics writer. Connection state transitions are published retained on
// the status topic so late subscribers always see the current condition.
//
// The bridge depends only on small interfaces (Controller, MQTTClient,
// MetricsWriter) so it can be exercised in tests without a broker or a
// receiver.
package bridge
