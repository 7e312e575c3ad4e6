package shim

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// Dialogs implements alert, confirm and prompt on top of the controller's
// message box.
type Dialogs struct {
	requester
}

// NewDialogs creates the dialog component.
func NewDialogs(ch channel.Channel, opts Options) *Dialogs {
	return &Dialogs{requester: newRequester(ch, opts, "dialogs")}
}

// Alert shows a message box with a single OK button and blocks until it is
// dismissed. The controller's answer is discarded.
func (d *Dialogs) Alert(ctx context.Context, message, title string) error {
	req := protocol.DialogRequest{
		Kind:    protocol.DialogAlert,
		Message: message,
		Title:   title,
		Buttons: []string{protocol.ButtonOK},
	}
	if _, err := d.roundTrip(ctx, protocol.TopicDialog, req); err != nil {
		return err
	}
	return nil
}

// Confirm shows an OK/Cancel message box and blocks for the answer. Any
// button other than Cancel counts as confirmation.
func (d *Dialogs) Confirm(ctx context.Context, message, title string) (bool, error) {
	cancelID := protocol.ConfirmCancelID
	req := protocol.DialogRequest{
		Kind:     protocol.DialogConfirm,
		Message:  message,
		Title:    title,
		Buttons:  []string{protocol.ButtonOK, protocol.ButtonCancel},
		CancelID: &cancelID,
	}
	reply, err := d.roundTrip(ctx, protocol.TopicDialog, req)
	if err != nil {
		return false, err
	}
	index, err := reply.Int()
	if err != nil {
		return false, &ChannelError{Op: "round-trip", Topic: protocol.TopicDialog, Err: fmt.Errorf("confirm reply: %w", err)}
	}
	d.logger.Debug("Confirm answered", zap.Int("button", index))
	return index != protocol.ConfirmCancelID, nil
}

// Prompt always fails. It never reaches the controller.
func (d *Dialogs) Prompt() error {
	return &UnsupportedOperationError{API: "prompt"}
}
