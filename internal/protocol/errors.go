package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrUnknownLine is returned when an inbound datagram does not match
	// any known property token or device notice.
	ErrUnknownLine = errors.New("protocol: unrecognised line")

	// ErrEmptyLine is returned when an inbound datagram is empty after
	// trimming whitespace.
	ErrEmptyLine = errors.New("protocol: empty line")

	// ErrUnknownProperty is returned when a command references a property
	// outside the vocabulary.
	ErrUnknownProperty = errors.New("protocol: unknown property")

	// ErrInvalidValue is returned when a command value cannot be encoded
	// for its property.
	ErrInvalidValue = errors.New("protocol: invalid value")

	// ErrDeviceNotice is the base error for recognised free-text replies
	// from the receiver ("Invalid Command", "Main Off", ...). These are
	// diagnostic, never fatal.
	ErrDeviceNotice = errors.New("protocol: device notice")
)
