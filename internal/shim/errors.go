package shim

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOperation marks page APIs the bridge refuses to implement.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// UnsupportedOperationError names the refused API.
type UnsupportedOperationError struct {
	API string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s() is and will not be supported", e.API)
}

// Unwrap lets errors.Is match ErrUnsupportedOperation.
func (e *UnsupportedOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}

// ChannelError is a failed exchange with the controller: a transport
// failure, a closed channel, an expired round-trip or a remote rejection.
type ChannelError struct {
	Op    string
	Topic string
	Err   error
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	return fmt.Sprintf("bridge %s on %s failed: %v", e.Op, e.Topic, e.Err)
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *ChannelError) Unwrap() error {
	return e.Err
}
