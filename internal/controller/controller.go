// Package controller is a reference controller process for the bridge. It
// owns the session history, dialogs, window registry and visibility of
// every connected page and serves their bridge requests.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/config"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// Message is a postMessage delivery recorded for a window.
type Message struct {
	From         int64     `json:"from"`
	Data         any       `json:"data"`
	TargetOrigin string    `json:"targetOrigin"`
	Received     time.Time `json:"received"`
}

// WindowInfo is a snapshot of a registered window.
type WindowInfo struct {
	ID           int64                    `json:"id"`
	Location     string                   `json:"location"`
	HistoryIndex int                      `json:"historyIndex"`
	HistoryLen   int                      `json:"historyLength"`
	Visibility   protocol.VisibilityState `json:"visibility"`
	Focused      bool                     `json:"focused"`
	Closed       bool                     `json:"closed"`
	Inbox        []Message                `json:"inbox"`
}

type window struct {
	id         int64
	pusher     channel.Pusher
	nav        *NavigationStack
	visibility protocol.VisibilityState
	focused    bool
	closed     bool
	inbox      []Message
}

func (w *window) info() WindowInfo {
	return WindowInfo{
		ID:           w.id,
		Location:     w.nav.Current(),
		HistoryIndex: w.nav.Index(),
		HistoryLen:   w.nav.Length(),
		Visibility:   w.visibility,
		Focused:      w.focused,
		Closed:       w.closed,
		Inbox:        append([]Message(nil), w.inbox...),
	}
}

// Controller is the trusted side of every bridge connection.
type Controller struct {
	logger    *zap.Logger
	cfg       config.ControllerConfig
	responder DialogResponder

	mu      sync.Mutex
	nextID  int64
	windows map[int64]*window
}

// New creates a controller. A nil responder answers dialogs from
// cfg.Dialog.
func New(cfg config.ControllerConfig, responder DialogResponder, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("controller")
	if responder == nil {
		responder = ScriptedResponder{ConfirmResponse: cfg.Dialog.ConfirmResponse, Logger: logger}
	}
	return &Controller{
		logger:    logger,
		cfg:       cfg,
		responder: responder,
		windows:   make(map[int64]*window),
	}
}

// Open registers a new window reachable through pusher and returns the
// session serving its requests.
func (c *Controller) Open(pusher channel.Pusher, hidden bool) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	w := &window{
		id:         c.nextID,
		pusher:     pusher,
		nav:        NewNavigationStack(c.cfg.InitialHistory...),
		visibility: protocol.Visible,
	}
	if hidden {
		w.visibility = protocol.Hidden
	}
	c.windows[w.id] = w
	c.logger.Info("Window opened", zap.Int64("window_id", w.id), zap.Bool("hidden", hidden))
	return &Session{ctrl: c, id: w.id, logger: c.logger.With(zap.Int64("window_id", w.id))}
}

func (c *Controller) lookup(id int64) (*window, error) {
	w, ok := c.windows[id]
	if !ok {
		return nil, &WindowNotFoundError{ID: id}
	}
	return w, nil
}

// Windows returns snapshots of all registered windows ordered by id.
func (c *Controller) Windows() []WindowInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WindowInfo, 0, len(c.windows))
	for _, w := range c.windows {
		out = append(out, w.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Window returns a snapshot of one window.
func (c *Controller) Window(id int64) (WindowInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, err := c.lookup(id)
	if err != nil {
		return WindowInfo{}, err
	}
	return w.info(), nil
}

// SetVisibility records state for window id and pushes it to the page.
// The push goes out even if the state did not change; the page drops
// duplicates.
func (c *Controller) SetVisibility(id int64, state protocol.VisibilityState) error {
	if _, err := protocol.ParseVisibilityState(string(state)); err != nil {
		return err
	}

	c.mu.Lock()
	w, err := c.lookup(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if w.closed {
		c.mu.Unlock()
		return fmt.Errorf("window %d is closed", id)
	}
	w.visibility = state
	pusher := w.pusher
	c.mu.Unlock()

	if err := pusher.Push(protocol.TopicVisibility, string(state)); err != nil {
		return fmt.Errorf("failed to push visibility to window %d: %w", id, err)
	}
	c.logger.Debug("Visibility pushed", zap.Int64("window_id", id), zap.String("state", string(state)))
	return nil
}

// Navigate loads url in window id as a new history entry.
func (c *Controller) Navigate(id int64, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, err := c.lookup(id)
	if err != nil {
		return err
	}
	w.nav.Navigate(url)
	return nil
}

// Session serves the requests of one connected page.
type Session struct {
	ctrl      *Controller
	id        int64
	logger    *zap.Logger
	closeOnce sync.Once
}

var _ channel.Handler = (*Session)(nil)

// WindowID returns the id of the session's window.
func (s *Session) WindowID() int64 {
	return s.id
}

// Close marks the window closed. It stays registered so openers can still
// observe window.closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.ctrl.mu.Lock()
		if w, ok := s.ctrl.windows[s.id]; ok {
			w.closed = true
		}
		s.ctrl.mu.Unlock()
		s.logger.Info("Window closed")
	})
}

// Serve implements channel.Handler.
func (s *Session) Serve(ctx context.Context, req channel.Request) (any, error) {
	switch req.Topic {
	case protocol.TopicDialog, protocol.TopicNavigationSync, protocol.TopicOpener:
		if !req.Sync {
			return nil, fmt.Errorf("%w: %s", ErrReplyRequired, req.Topic)
		}
	}

	switch req.Topic {
	case protocol.TopicDialog:
		return s.serveDialog(ctx, req)
	case protocol.TopicNavigation:
		return nil, s.serveNavigation(req)
	case protocol.TopicNavigationSync:
		return s.serveNavigationSync(req)
	case protocol.TopicOpener:
		return s.serveOpener(req)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, req.Topic)
}

func (s *Session) serveDialog(ctx context.Context, req channel.Request) (any, error) {
	var dialog protocol.DialogRequest
	if err := req.Args.Decode(0, &dialog); err != nil {
		return nil, err
	}
	return s.ctrl.responder.Respond(ctx, s.id, dialog)
}

func (s *Session) serveNavigation(req channel.Request) error {
	op, err := req.Args.String(0)
	if err != nil {
		return err
	}

	s.ctrl.mu.Lock()
	w, err := s.ctrl.lookup(s.id)
	s.ctrl.mu.Unlock()
	if err != nil {
		return err
	}

	var moved bool
	switch protocol.HistoryOperation(op) {
	case protocol.OpGoBack:
		moved = w.nav.GoBack()
	case protocol.OpGoForward:
		moved = w.nav.GoForward()
	case protocol.OpGoToOffset:
		offset, err := req.Args.Int(1)
		if err != nil {
			return err
		}
		moved = w.nav.GoToOffset(offset)
	default:
		return fmt.Errorf("unknown navigation operation %q", op)
	}

	s.logger.Debug("Navigation requested",
		zap.String("operation", op), zap.Bool("moved", moved), zap.String("location", w.nav.Current()))
	return nil
}

func (s *Session) serveNavigationSync(req channel.Request) (any, error) {
	op, err := req.Args.String(0)
	if err != nil {
		return nil, err
	}
	if protocol.HistoryOperation(op) != protocol.OpLength {
		return nil, fmt.Errorf("unknown navigation query %q", op)
	}

	s.ctrl.mu.Lock()
	defer s.ctrl.mu.Unlock()
	w, err := s.ctrl.lookup(s.id)
	if err != nil {
		return nil, err
	}
	return w.nav.Length(), nil
}

func (s *Session) serveOpener(req channel.Request) (any, error) {
	targetID, err := req.Args.Int64(0)
	if err != nil {
		return nil, err
	}
	var access protocol.OpenerAccess
	if err := req.Args.Decode(1, &access); err != nil {
		return nil, err
	}

	s.ctrl.mu.Lock()
	defer s.ctrl.mu.Unlock()
	target, err := s.ctrl.lookup(targetID)
	if err != nil {
		return nil, err
	}

	switch access.Kind {
	case protocol.AccessGet:
		switch access.Name {
		case protocol.MemberClosed:
			return target.closed, nil
		case protocol.MemberLocation:
			return target.nav.Current(), nil
		}
	case protocol.AccessCall:
		switch access.Name {
		case protocol.MemberFocus:
			target.focused = true
			return nil, nil
		case protocol.MemberBlur:
			target.focused = false
			return nil, nil
		case protocol.MemberClose:
			target.closed = true
			return nil, nil
		case protocol.MemberPostMessage:
			return nil, s.deliver(target, access.Args)
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedMember, access.Kind, access.Name)
}

// deliver records a postMessage on target. Caller holds ctrl.mu.
func (s *Session) deliver(target *window, args []any) error {
	if len(args) < 2 {
		return fmt.Errorf("postMessage needs a message and a target origin")
	}
	origin, ok := args[1].(string)
	if !ok {
		return fmt.Errorf("postMessage target origin must be a string")
	}
	if target.closed {
		return nil
	}
	target.inbox = append(target.inbox, Message{
		From:         s.id,
		Data:         args[0],
		TargetOrigin: origin,
		Received:     time.Now(),
	})
	return nil
}
