package protocol

// Property identifies one controllable or observable attribute of the
// receiver. The value is the status token the device reports under.
type Property string

// Zone 1 property vocabulary.
const (
	// PropPower is zone 1 power ("0" off, "1" on).
	PropPower Property = "P1P"

	// PropVolume is zone 1 volume. The receiver tracks volume as an
	// attenuation level in dB from -90 (silent) to 0. Status arrives as
	// P1VM<value>; the set command uses the P1V token.
	PropVolume Property = "P1VM"

	// PropInput is zone 1 input source ("1".."9", "d", "e").
	PropInput Property = "P1S"

	// PropMute is zone 1 mute ("0" unmuted, "1" muted).
	PropMute Property = "P1M"
)

// propertyInfo holds per-property wire tokens and display metadata.
type propertyInfo struct {
	description string
	setToken    string            // token for set commands
	queryToken  string            // full query datagram body (without ';')
	values      map[string]string // display names for enumerated raw values
}

// lookup is the fixed vocabulary table. Values outside this table are
// treated as unrecognised by Decode.
var lookup = map[Property]propertyInfo{
	PropPower: {
		description: "Zone 1 Power",
		setToken:    "P1P",
		queryToken:  "P1P?",
		values:      map[string]string{"0": "Off", "1": "On"},
	},
	PropVolume: {
		description: "Zone 1 Volume",
		setToken:    "P1V",
		queryToken:  "P1V?",
	},
	PropInput: {
		description: "Zone 1 Input",
		setToken:    "P1S",
		queryToken:  "P1S?",
		values: map[string]string{
			"1": "BDP", "2": "CD", "3": "TV", "4": "SAT", "5": "GAME",
			"6": "AUX", "7": "MEDIA", "8": "TV", "9": "SAT",
			"d": "USB", "e": "Internet Radio",
		},
	},
	PropMute: {
		description: "Zone 1 Mute",
		setToken:    "P1M",
		queryToken:  "P1M?",
		values:      map[string]string{"0": "Unmuted", "1": "Muted"},
	},
}

// decodeOrder lists status tokens longest-first so prefix matching is
// deterministic (P1VM must match before P1P/P1M/P1S get a chance).
var decodeOrder = []Property{PropVolume, PropPower, PropInput, PropMute}

// Properties returns the full vocabulary in a stable order.
func Properties() []Property {
	return []Property{PropPower, PropVolume, PropInput, PropMute}
}

// CoreProperties returns the properties that are safe to query regardless
// of the receiver's power state.
func CoreProperties() []Property {
	return []Property{PropPower}
}

// Valid reports whether p is part of the vocabulary.
func (p Property) Valid() bool {
	_, ok := lookup[p]
	return ok
}

// Description returns a human-readable name for the property.
func (p Property) Description() string {
	if info, ok := lookup[p]; ok {
		return info.description
	}
	return string(p)
}

// ValueName returns the display name for an enumerated raw value
// (e.g. PropInput "5" → "GAME"). The second return is false when the
// property has no name for that value.
func (p Property) ValueName(raw string) (string, bool) {
	info, ok := lookup[p]
	if !ok || info.values == nil {
		return "", false
	}
	name, ok := info.values[raw]
	return name, ok
}

// Values returns a copy of the enumerated raw-value vocabulary for the
// property (raw → display name). Nil for unconstrained properties such
// as volume.
func (p Property) Values() map[string]string {
	info, ok := lookup[p]
	if !ok || info.values == nil {
		return nil
	}
	out := make(map[string]string, len(info.values))
	for raw, name := range info.values {
		out[raw] = name
	}
	return out
}

// String implements fmt.Stringer.
func (p Property) String() string {
	return string(p)
}
