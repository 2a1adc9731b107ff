package mqtt

import "fmt"

// Topic prefixes for the avrbridge MQTT surface.
//
// All topics use the flat scheme: avrbridge/{category}/{name}
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "avrbridge"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "avrbridge/system"
)

// Topics provides builders for avrbridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("volume")
//	// Returns: "avrbridge/state/volume"
type Topics struct{}

// State returns the topic for retained property state updates.
//
// Example: avrbridge/state/volume
func (Topics) State(name string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, name)
}

// Command returns the topic for commands to the receiver.
//
// Example: avrbridge/command/volume
func (Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, name)
}

// Status returns the retained receiver connection status topic.
//
// Example: avrbridge/status
func (Topics) Status() string {
	return fmt.Sprintf("%s/status", TopicPrefix)
}

// SystemStatus returns the bridge process status topic. The broker
// publishes the Last Will here if the process dies unexpectedly.
//
// Example: avrbridge/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllStates returns a pattern matching all property state updates.
//
// Pattern: avrbridge/state/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllCommands returns a pattern matching all commands.
//
// Pattern: avrbridge/command/#
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/#", TopicPrefix)
}

// AllTopics returns a pattern matching all avrbridge topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: avrbridge/#
func (Topics) AllTopics() string {
	return "avrbridge/#"
}
