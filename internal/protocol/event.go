package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Event is a decoded inbound datagram: one property with its new raw value.
// Events are immutable after creation and consumed exactly once by the
// state store.
type Event struct {
	// Property is the reporting property.
	Property Property

	// Value is the raw wire value (e.g. "1", "-40", "d").
	Value string

	// Raw is the original datagram text, kept for diagnostics.
	Raw string

	// Timestamp records when the datagram was decoded.
	Timestamp time.Time
}

// NoticeError is returned by Decode for recognised free-text replies from
// the receiver. Notices are diagnostic only; the read loop logs them and
// keeps going.
type NoticeError struct {
	// Notice is the matched prefix ("Invalid Command", "Main Off", ...).
	Notice string

	// Raw is the full datagram text.
	Raw string
}

func (e *NoticeError) Error() string {
	return fmt.Sprintf("protocol: device notice %q", e.Raw)
}

// Unwrap makes errors.Is(err, ErrDeviceNotice) work.
func (e *NoticeError) Unwrap() error {
	return ErrDeviceNotice
}

// deviceNotices are free-text prefixes the receiver sends in response to
// commands it rejects or cannot execute in its current power state.
var deviceNotices = []string{
	"Invalid Command",
	"Parameter Out-of-range",
	"Main Off",
	"Zone2 Off",
}

// Decode interprets one framed datagram (without the ';' terminator).
//
// Decoding is tolerant: a malformed or unknown line yields an error
// carrying the raw text rather than halting the read loop. Unknown
// property tokens (future firmware may add some) decode to
// ErrUnknownLine and are ignored upstream.
//
// Returns:
//   - Event: The decoded event, timestamp set to now
//   - error: ErrEmptyLine, a *NoticeError, or ErrUnknownLine
func Decode(line string) (Event, error) {
	data := strings.TrimSpace(line)
	if data == "" {
		return Event{}, ErrEmptyLine
	}

	for _, notice := range deviceNotices {
		if strings.HasPrefix(data, notice) {
			return Event{}, &NoticeError{Notice: notice, Raw: data}
		}
	}

	for _, p := range decodeOrder {
		if strings.HasPrefix(data, string(p)) {
			return Event{
				Property:  p,
				Value:     data[len(p):],
				Raw:       data,
				Timestamp: time.Now(),
			}, nil
		}
	}

	return Event{}, fmt.Errorf("%w: %q", ErrUnknownLine, data)
}

// String returns a readable form for logging.
func (e Event) String() string {
	if name, ok := e.Property.ValueName(e.Value); ok {
		return fmt.Sprintf("%s (%s) -> %s (%s)", e.Property.Description(), e.Property, name, e.Value)
	}
	return fmt.Sprintf("%s (%s) -> %s", e.Property.Description(), e.Property, e.Value)
}
