package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/quiethouse/avrbridge/internal/device"
	"github.com/quiethouse/avrbridge/internal/protocol"
)

// TopicPrefix is the base topic for all bridge messages.
const TopicPrefix = "avrbridge"

// Command target names accepted on the command topics. Most correspond
// to a mirrored property; attenuation and refresh are command-only.
const (
	TargetPower       = "power"
	TargetVolume      = "volume"
	TargetAttenuation = "attenuation"
	TargetInput       = "input"
	TargetMute        = "mute"
	TargetRefresh     = "refresh"
)

// propertyNames maps mirrored properties onto their topic names.
var propertyNames = map[protocol.Property]string{
	protocol.PropPower:  TargetPower,
	protocol.PropVolume: TargetVolume,
	protocol.PropInput:  TargetInput,
	protocol.PropMute:   TargetMute,
}

// StateTopic returns the retained state topic for a property name.
// Example: avrbridge/state/volume
func StateTopic(name string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, name)
}

// CommandTopic returns the command topic for a target name.
// Example: avrbridge/command/volume
func CommandTopic(name string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, name)
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
// Pattern: avrbridge/command/#
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/#", TopicPrefix)
}

// StatusTopic returns the retained connection status topic.
// Example: avrbridge/status
func StatusTopic() string {
	return fmt.Sprintf("%s/status", TopicPrefix)
}

// StateMessage is the JSON payload published on state topics.
//
// Volume carries three views of the same value so subscribers can pick
// whichever scale suits them: raw dB attenuation, 0..100, and 0..1.
type StateMessage struct {
	Property      string    `json:"property"`
	Token         string    `json:"token"`
	Value         string    `json:"value"`
	Known         bool      `json:"known"`
	Display       string    `json:"display,omitempty"`
	AttenuationDB *int      `json:"attenuation_db,omitempty"`
	Volume        *int      `json:"volume,omitempty"`
	Percent       *float64  `json:"percent,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewStateMessage builds the payload for one observed transition.
func NewStateMessage(p protocol.Property, v device.Value) StateMessage {
	msg := StateMessage{
		Property:  propertyNames[p],
		Token:     string(p),
		Value:     v.Raw,
		Known:     v.Known,
		Timestamp: v.UpdatedAt,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if !v.Known {
		return msg
	}

	if name, ok := p.ValueName(v.Raw); ok {
		msg.Display = name
	}
	if p == protocol.PropVolume {
		if att, err := v.Int(); err == nil {
			vol := protocol.AttenuationToVolume(att)
			pct := float64(vol) / 100.0
			msg.AttenuationDB = &att
			msg.Volume = &vol
			msg.Percent = &pct
		}
	}
	return msg
}

// StatusMessage is the retained JSON payload on the status topic.
type StatusMessage struct {
	Status     string    `json:"status"`
	Reconnects uint64    `json:"reconnects"`
	Pending    int       `json:"pending_commands"`
	Timestamp  time.Time `json:"timestamp"`
}

// parseOnOff maps the accepted boolean payload spellings.
func parseOnOff(payload string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "1", "on", "true":
		return true, nil
	case "0", "off", "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not on/off", ErrBadPayload, payload)
	}
}
