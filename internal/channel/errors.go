package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation on a closed channel and
	// delivered to round-trips still waiting when the channel closes.
	ErrClosed = errors.New("channel closed")
	// ErrEmptyReply is returned when decoding a reply that carries no value.
	ErrEmptyReply = errors.New("empty reply")
	// ErrMissingArgument is returned when a message has fewer arguments
	// than the receiver expects.
	ErrMissingArgument = errors.New("missing argument")
)

// RemoteError is a failure reported by the controller for a round-trip.
type RemoteError struct {
	Topic   string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("controller rejected %s: %s", e.Topic, e.Message)
}
