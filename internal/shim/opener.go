package shim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// OpenerProxy hands out remote window handles, one per id for the life of
// the page context.
type OpenerProxy struct {
	requester

	mu      sync.Mutex
	windows map[int64]*RemoteWindow
}

// NewOpenerProxy creates an empty proxy cache.
func NewOpenerProxy(ch channel.Channel, opts Options) *OpenerProxy {
	return &OpenerProxy{
		requester: newRequester(ch, opts, "opener"),
		windows:   make(map[int64]*RemoteWindow),
	}
}

// GetOrCreate returns the handle for id, creating it on first use.
func (p *OpenerProxy) GetOrCreate(id int64) *RemoteWindow {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.windows[id]; ok {
		return w
	}
	w := &RemoteWindow{id: id, requester: p.requester}
	p.windows[id] = w
	p.logger.Debug("Created remote window handle", zap.Int64("window_id", id))
	return w
}

// RemoteWindow is a handle to a window living in another page context. It
// holds nothing but the id; every member access asks the controller.
type RemoteWindow struct {
	requester
	id int64
}

// ID returns the remote window id.
func (w *RemoteWindow) ID() int64 { return w.id }

func (w *RemoteWindow) access(ctx context.Context, access protocol.OpenerAccess) (channel.Reply, error) {
	return w.roundTrip(ctx, protocol.TopicOpener, w.id, access)
}

// Get reads a property of the remote window.
func (w *RemoteWindow) Get(ctx context.Context, name string) (channel.Reply, error) {
	return w.access(ctx, protocol.OpenerAccess{Kind: protocol.AccessGet, Name: name})
}

// Call invokes a method of the remote window.
func (w *RemoteWindow) Call(ctx context.Context, name string, args ...any) (channel.Reply, error) {
	return w.access(ctx, protocol.OpenerAccess{Kind: protocol.AccessCall, Name: name, Args: args})
}

// Closed reports whether the remote window has been closed.
func (w *RemoteWindow) Closed(ctx context.Context) (bool, error) {
	reply, err := w.Get(ctx, protocol.MemberClosed)
	if err != nil {
		return false, err
	}
	var closed bool
	if err := reply.Decode(&closed); err != nil {
		return false, w.decodeError(protocol.MemberClosed, err)
	}
	return closed, nil
}

// Location returns the URL the remote window currently shows.
func (w *RemoteWindow) Location(ctx context.Context) (string, error) {
	reply, err := w.Get(ctx, protocol.MemberLocation)
	if err != nil {
		return "", err
	}
	var location string
	if err := reply.Decode(&location); err != nil {
		return "", w.decodeError(protocol.MemberLocation, err)
	}
	return location, nil
}

// Focus focuses the remote window.
func (w *RemoteWindow) Focus(ctx context.Context) error {
	_, err := w.Call(ctx, protocol.MemberFocus)
	return err
}

// Blur removes focus from the remote window.
func (w *RemoteWindow) Blur(ctx context.Context) error {
	_, err := w.Call(ctx, protocol.MemberBlur)
	return err
}

// Close closes the remote window.
func (w *RemoteWindow) Close(ctx context.Context) error {
	_, err := w.Call(ctx, protocol.MemberClose)
	return err
}

// PostMessage delivers message to the remote window if its origin matches
// targetOrigin ("*" matches any).
func (w *RemoteWindow) PostMessage(ctx context.Context, message any, targetOrigin string) error {
	_, err := w.Call(ctx, protocol.MemberPostMessage, message, targetOrigin)
	return err
}

// Eval asks the remote window to evaluate code.
func (w *RemoteWindow) Eval(ctx context.Context, code string) (channel.Reply, error) {
	return w.Call(ctx, protocol.MemberEval, code)
}

func (w *RemoteWindow) decodeError(member string, err error) error {
	return &ChannelError{Op: "round-trip", Topic: protocol.TopicOpener, Err: fmt.Errorf("window %d %s: %w", w.id, member, err)}
}
