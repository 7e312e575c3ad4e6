package shim

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// EventVisibilityChange is dispatched on the document when the state flips.
const EventVisibilityChange = "visibilitychange"

// Visibility caches the page visibility decided by the controller. It has
// a single writer, the push handler, and is only touched on the page loop,
// so it carries no lock.
type Visibility struct {
	logger   *zap.Logger
	state    protocol.VisibilityState
	dispatch func(eventType string)
}

// NewVisibility seeds the cache from the launch flag. dispatch fires a
// document event and may be nil.
func NewVisibility(hidden bool, dispatch func(eventType string), logger *zap.Logger) *Visibility {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatch == nil {
		dispatch = func(string) {}
	}
	state := protocol.Visible
	if hidden {
		state = protocol.Hidden
	}
	return &Visibility{logger: logger.Named("visibility"), state: state, dispatch: dispatch}
}

// Hidden reports whether the page is anything but visible.
func (v *Visibility) Hidden() bool {
	return v.state != protocol.Visible
}

// State returns the cached visibility state.
func (v *Visibility) State() protocol.VisibilityState {
	return v.state
}

// Apply takes a pushed state. A new value updates the cache and fires
// visibilitychange once; a repeated or unknown value is dropped. It
// reports whether the state changed.
func (v *Visibility) Apply(raw string) bool {
	next, err := protocol.ParseVisibilityState(raw)
	if err != nil {
		v.logger.Warn("Ignoring malformed visibility push", zap.Error(err))
		return false
	}
	if next == v.state {
		return false
	}
	v.logger.Debug("Visibility changed",
		zap.String("from", string(v.state)), zap.String("to", string(next)))
	v.state = next
	v.dispatch(EventVisibilityChange)
	return true
}
