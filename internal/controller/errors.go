package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTopic is returned for requests on topics the controller
	// does not serve.
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrUnsupportedMember is returned for remote window members the
	// controller refuses to serve.
	ErrUnsupportedMember = errors.New("unsupported window member")
	// ErrReplyRequired is returned when a query topic arrives as a one-way
	// message, leaving nobody to receive the answer.
	ErrReplyRequired = errors.New("topic requires a round-trip")
)

// WindowNotFoundError is returned when a request names a window id that
// is not registered.
type WindowNotFoundError struct {
	ID int64
}

// Error implements the error interface.
func (e *WindowNotFoundError) Error() string {
	return fmt.Sprintf("window %d not found", e.ID)
}
