package device

import (
	"strconv"
	"time"
)

// Value is the current state of one property.
//
// A zero Value is Unknown: Known is false and Raw is empty. Unknown is
// distinct from every valid device value: "not yet observed" must never
// be confused with "off" or "zero".
type Value struct {
	// Raw is the wire value as reported by the receiver.
	Raw string

	// Known is true once the property has been observed from the device.
	Known bool

	// UpdatedAt is when the value was last applied.
	UpdatedAt time.Time
}

// Unknown is the explicit not-yet-observed value.
var Unknown = Value{}

// Bool interprets the raw value as a device boolean ("0"/"1").
// Returns ErrUnknownValue when the property is Unknown.
func (v Value) Bool() (bool, error) {
	if !v.Known {
		return false, ErrUnknownValue
	}
	return v.Raw == "1", nil
}

// Int interprets the raw value as a decimal integer.
// Returns ErrUnknownValue when the property is Unknown or the raw value
// is not numeric.
func (v Value) Int() (int, error) {
	if !v.Known {
		return 0, ErrUnknownValue
	}
	n, err := strconv.Atoi(v.Raw)
	if err != nil {
		return 0, ErrUnknownValue
	}
	return n, nil
}

// String returns the raw value, or "unknown" for an Unknown value.
func (v Value) String() string {
	if !v.Known {
		return "unknown"
	}
	return v.Raw
}
