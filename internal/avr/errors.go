package avr

import "errors"

// Domain errors for the avr package.
var (
	// ErrNotConnected is returned when a command is issued while the
	// session is down. Commands are never queued across disconnects.
	ErrNotConnected = errors.New("avr: not connected")

	// ErrConnectionFailed is returned when the initial connection cannot
	// be established.
	ErrConnectionFailed = errors.New("avr: connection failed")

	// ErrConnectionLost fails commands that were pending when the
	// connection dropped.
	ErrConnectionLost = errors.New("avr: connection lost")

	// ErrCommandTimeout is returned when a query receives no correlated
	// status reply within the command timeout.
	ErrCommandTimeout = errors.New("avr: command timed out")

	// ErrCommandRejected is returned when the device answers a command
	// with a notice ("Invalid Command", "Main Off", ...).
	ErrCommandRejected = errors.New("avr: command rejected by device")

	// ErrCommandCancelled is returned when the caller's context ends
	// before the command completes.
	ErrCommandCancelled = errors.New("avr: command cancelled")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("avr: client closed")

	// ErrInvalidValue is returned for out-of-range or unrecognised values
	// passed to the typed setters.
	ErrInvalidValue = errors.New("avr: invalid value")
)
