package protocol

import "math"

// Volume and attenuation conversions.
//
// The receiver tracks volume internally as an attenuation level ranging
// from -90 dB (silent) to 0 dB. Downstream applications usually want a
// 0-100 volume or a 0-1 fraction, so both views are provided.

// Attenuation bounds in dB.
const (
	MinAttenuation = -90
	MaxAttenuation = 0
)

// AttenuationToVolume converts an attenuation in dB (-90..0) to a volume
// value (0..100). Out-of-range input is clamped.
func AttenuationToVolume(att int) int {
	att = ClampAttenuation(att)
	return int(math.Round(float64(90+att) / 90.0 * 100.0))
}

// VolumeToAttenuation converts a volume value (0..100) to an attenuation
// in dB (-90..0). Out-of-range input is clamped.
func VolumeToAttenuation(vol int) int {
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}
	return int(math.Round(float64(vol)/100.0*90.0)) - 90
}

// ClampAttenuation bounds att to the receiver's valid range.
func ClampAttenuation(att int) int {
	if att < MinAttenuation {
		return MinAttenuation
	}
	if att > MaxAttenuation {
		return MaxAttenuation
	}
	return att
}
