package shim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/channel"
)

// Options tune the bridge components.
type Options struct {
	// RoundTripTimeout bounds every blocking request. Zero waits until the
	// controller answers or the channel closes.
	RoundTripTimeout time.Duration
	Logger           *zap.Logger
}

// requester is the part every bridge component shares: the channel and the
// round-trip deadline.
type requester struct {
	ch      channel.Channel
	timeout time.Duration
	logger  *zap.Logger
}

func newRequester(ch channel.Channel, opts Options, name string) requester {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return requester{ch: ch, timeout: opts.RoundTripTimeout, logger: logger.Named(name)}
}

// roundTrip blocks until the controller answers. Any failure comes back as
// a *ChannelError.
func (r requester) roundTrip(ctx context.Context, topic string, args ...any) (channel.Reply, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	reply, err := r.ch.SendAndWait(ctx, topic, args...)
	if err != nil {
		return nil, &ChannelError{Op: "round-trip", Topic: topic, Err: err}
	}
	return reply, nil
}

// notify hands a one-way message to the channel and returns immediately.
func (r requester) notify(topic string, args ...any) error {
	if err := r.ch.SendOneWay(topic, args...); err != nil {
		return &ChannelError{Op: "send", Topic: topic, Err: err}
	}
	return nil
}
