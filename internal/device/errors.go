package device

import "errors"

// Domain errors for the device package.
var (
	// ErrStoreClosed is returned when applying to or subscribing on a
	// store that has been closed.
	ErrStoreClosed = errors.New("device: store closed")

	// ErrUnknownValue is returned by typed accessors when the property
	// has not been observed yet.
	ErrUnknownValue = errors.New("device: value unknown")
)
