package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Command is a request to change or query one property.
//
// A set command carries the raw wire value; a query carries none. Queries
// expect the receiver to answer with a status datagram for the same
// property, so they must not be pipelined (see the avr package).
type Command struct {
	// Property is the target property.
	Property Property

	// Value is the raw wire value for set commands; empty for queries.
	Value string

	// Query marks a pure query (no value, expects a reply).
	Query bool

	// CreatedAt records when the command was built.
	CreatedAt time.Time
}

// NewSetCommand builds a fire-and-forget set command.
func NewSetCommand(p Property, value string) Command {
	return Command{Property: p, Value: value, CreatedAt: time.Now()}
}

// NewQueryCommand builds a reply-expecting query command.
func NewQueryCommand(p Property) Command {
	return Command{Property: p, Query: true, CreatedAt: time.Now()}
}

// ExpectsReply reports whether the command must wait for a correlated
// status event before another reply-expecting command may be sent.
func (c Command) ExpectsReply() bool {
	return c.Query
}

// Encode produces exactly one terminated wire datagram for the command.
//
// Returns:
//   - []byte: The datagram including the ';' terminator
//   - error: ErrUnknownProperty or ErrInvalidValue
func Encode(c Command) ([]byte, error) {
	info, ok := lookup[c.Property]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, c.Property)
	}

	if c.Query {
		return []byte(info.queryToken + ";"), nil
	}

	if c.Value == "" {
		return nil, fmt.Errorf("%w: set command for %s has no value", ErrInvalidValue, c.Property)
	}
	// The value travels inside a ';'-delimited ASCII datagram, so it must
	// not contain the terminator or control characters.
	if strings.ContainsAny(c.Value, ";\r\n") {
		return nil, fmt.Errorf("%w: %q contains reserved characters", ErrInvalidValue, c.Value)
	}
	for _, r := range c.Value {
		if r < 0x20 || r > 0x7E {
			return nil, fmt.Errorf("%w: %q is not printable ASCII", ErrInvalidValue, c.Value)
		}
	}

	return []byte(info.setToken + c.Value + ";"), nil
}

// String returns a readable form for logging.
func (c Command) String() string {
	if c.Query {
		return fmt.Sprintf("query %s", c.Property)
	}
	return fmt.Sprintf("set %s=%s", c.Property, c.Value)
}
