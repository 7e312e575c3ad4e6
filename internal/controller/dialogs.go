package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// DialogResponder decides which button a dialog request resolves to.
type DialogResponder interface {
	Respond(ctx context.Context, windowID int64, req protocol.DialogRequest) (int, error)
}

// ScriptedResponder answers without user interaction: alerts resolve to
// their only button and confirms to ConfirmResponse.
type ScriptedResponder struct {
	ConfirmResponse int
	Logger          *zap.Logger
}

// Respond implements DialogResponder.
func (r ScriptedResponder) Respond(_ context.Context, windowID int64, req protocol.DialogRequest) (int, error) {
	if len(req.Buttons) == 0 {
		return 0, fmt.Errorf("dialog without buttons")
	}

	answer := 0
	if req.Kind == protocol.DialogConfirm {
		answer = r.ConfirmResponse
	}
	if answer >= len(req.Buttons) {
		return 0, fmt.Errorf("scripted answer %d out of range for %d buttons", answer, len(req.Buttons))
	}

	if r.Logger != nil {
		r.Logger.Info("Dialog shown",
			zap.Int64("window_id", windowID),
			zap.String("kind", string(req.Kind)),
			zap.String("title", req.Title),
			zap.String("message", req.Message),
			zap.String("answer", req.Buttons[answer]))
	}
	return answer, nil
}
