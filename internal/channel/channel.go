// Package channel carries bridge traffic between a page context and the
// controller process. A Channel offers exactly three operations: one-way
// sends, blocking round-trips and push subscriptions.
package channel

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
)

// Channel is the renderer's only endpoint to the controller.
type Channel interface {
	// SendOneWay delivers a notification without waiting for the
	// controller. A nil error only means the message was handed to the
	// transport.
	SendOneWay(topic string, args ...any) error
	// SendAndWait blocks until the controller replies, ctx is done, or
	// the channel closes.
	SendAndWait(ctx context.Context, topic string, args ...any) (Reply, error)
	// Subscribe registers handler for pushes on topic. Pushes are handed
	// over in the order the controller sent them.
	Subscribe(topic string, handler PushHandler) (unsubscribe func())
}

// PushHandler receives controller pushes. It runs on the transport's
// delivery goroutine and must not block.
type PushHandler func(args Args)

// Pusher is the controller's side of a connection.
type Pusher interface {
	Push(topic string, args ...any) error
}

// Request is a renderer message as seen by the controller.
type Request struct {
	Topic string
	Args  Args
	// Sync is set when the renderer is blocked waiting for the result.
	Sync bool
}

// Handler serves renderer requests on the controller side. The result of a
// one-way request is discarded.
type Handler interface {
	Serve(ctx context.Context, req Request) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Serve calls f(ctx, req).
func (f HandlerFunc) Serve(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Reply is the JSON encoded result of a round-trip.
type Reply json.RawMessage

// Decode unmarshals the reply into v.
func (r Reply) Decode(v any) error {
	if len(r) == 0 {
		return ErrEmptyReply
	}
	if err := json.Unmarshal(r, v); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}

// Int decodes the reply as an integer. A null reply is ErrEmptyReply.
func (r Reply) Int() (int, error) {
	var n *int
	if err := r.Decode(&n); err != nil {
		return 0, err
	}
	if n == nil {
		return 0, ErrEmptyReply
	}
	return *n, nil
}

// Args are the JSON encoded arguments of a message, kept raw until the
// receiver knows what to expect.
type Args []json.RawMessage

// EncodeArgs marshals each value separately.
func EncodeArgs(values ...any) (Args, error) {
	args := make(Args, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		args[i] = raw
	}
	return args, nil
}

// Len reports the number of arguments.
func (a Args) Len() int { return len(a) }

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("%w: want index %d, have %d", ErrMissingArgument, i, len(a))
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("failed to decode argument %d: %w", i, err)
	}
	return nil
}

// String decodes argument i as a string.
func (a Args) String(i int) (string, error) {
	var s string
	err := a.Decode(i, &s)
	return s, err
}

// Int decodes argument i as an integer.
func (a Args) Int(i int) (int, error) {
	var n int
	err := a.Decode(i, &n)
	return n, err
}

// Int64 decodes argument i as a 64 bit integer.
func (a Args) Int64(i int) (int64, error) {
	var n int64
	err := a.Decode(i, &n)
	return n, err
}
