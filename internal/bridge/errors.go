package bridge

import "errors"

var (
	// ErrBadPayload indicates a command payload that could not be parsed.
	ErrBadPayload = errors.New("bridge: bad command payload")

	// ErrUnknownTarget indicates a command topic with no matching target.
	ErrUnknownTarget = errors.New("bridge: unknown command target")
)
