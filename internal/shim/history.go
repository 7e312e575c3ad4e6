package shim

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// History forwards history operations to the controller's navigation
// stack. Moves are fire-and-forget; Length asks every time.
type History struct {
	requester
}

// NewHistory creates the history component.
func NewHistory(ch channel.Channel, opts Options) *History {
	return &History{requester: newRequester(ch, opts, "history")}
}

// Back asks the controller to go one entry back.
func (h *History) Back() error {
	return h.send(protocol.HistoryCommand{Operation: protocol.OpGoBack})
}

// Forward asks the controller to go one entry forward.
func (h *History) Forward() error {
	return h.send(protocol.HistoryCommand{Operation: protocol.OpGoForward})
}

// Go asks the controller to move by offset entries. The offset is passed
// through as is; range checks are the controller's business.
func (h *History) Go(offset int) error {
	return h.send(protocol.HistoryCommand{Operation: protocol.OpGoToOffset, Argument: &offset})
}

func (h *History) send(cmd protocol.HistoryCommand) error {
	return h.notify(protocol.TopicNavigation, cmd.Args()...)
}

// Length returns the number of entries in the session history. The value
// is never cached.
func (h *History) Length(ctx context.Context) (int, error) {
	cmd := protocol.HistoryCommand{Operation: protocol.OpLength}
	reply, err := h.roundTrip(ctx, protocol.TopicNavigationSync, cmd.Args()...)
	if err != nil {
		return 0, err
	}
	n, err := reply.Int()
	if err != nil {
		return 0, &ChannelError{Op: "round-trip", Topic: protocol.TopicNavigationSync, Err: fmt.Errorf("length reply: %w", err)}
	}
	return n, nil
}
