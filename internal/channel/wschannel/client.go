// Package wschannel implements channel.Channel over a websocket connection
// to the controller process. Frames are channel.Envelope values encoded as
// JSON text messages.
package wschannel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/channel"
)

// Options tune the client connection.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Header       http.Header
}

// Client is the renderer end of a websocket bridge connection.
type Client struct {
	logger       *zap.Logger
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	subs    channel.Subscriptions

	pendingMu sync.Mutex
	pending   map[string]chan *channel.Envelope
	closed    bool

	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

var _ channel.Channel = (*Client)(nil)

// Dial connects to the controller at url.
func Dial(ctx context.Context, url string, logger *zap.Logger, opts Options) (*Client, error) {
	dialer := *websocket.DefaultDialer
	if opts.DialTimeout > 0 {
		dialer.HandshakeTimeout = opts.DialTimeout
	}

	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial controller at %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial controller at %s: %w", url, err)
	}
	return NewClient(conn, logger, opts), nil
}

// NewClient wraps an established connection and starts reading frames.
func NewClient(conn *websocket.Conn, logger *zap.Logger, opts Options) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		logger:       logger.Named("ws_channel"),
		conn:         conn,
		writeTimeout: opts.WriteTimeout,
		pending:      make(map[string]chan *channel.Envelope),
		done:         make(chan struct{}),
		readDone:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Done is closed once the connection is gone, whether by Close or because
// the controller went away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.isClosed() {
				c.logger.Warn("Controller connection lost", zap.Error(err))
			}
			c.markDone()
			return
		}

		env, err := channel.DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", zap.Error(err))
			continue
		}

		switch env.Kind {
		case channel.KindReply:
			c.resolve(env)
		case channel.KindPush:
			c.subs.Deliver(env.Topic, env.Args)
		default:
			c.logger.Warn("Unexpected frame from controller", zap.String("kind", string(env.Kind)))
		}
	}
}

func (c *Client) resolve(env *channel.Envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("Reply for unknown request", zap.String("id", env.ID))
		return
	}
	ch <- env
}

func (c *Client) isClosed() bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.closed
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() {
		c.pendingMu.Lock()
		c.closed = true
		c.pending = make(map[string]chan *channel.Envelope)
		c.pendingMu.Unlock()
		close(c.done)
	})
}

func (c *Client) write(env *channel.Envelope) error {
	data, err := channel.EncodeEnvelope(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.isClosed() {
			return channel.ErrClosed
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// SendOneWay writes a notification frame. It waits for the socket write
// only, never for the controller.
func (c *Client) SendOneWay(topic string, args ...any) error {
	if c.isClosed() {
		return channel.ErrClosed
	}
	env, err := channel.NewSend(topic, args...)
	if err != nil {
		return err
	}
	return c.write(env)
}

// SendAndWait writes an invoke frame and blocks for the matching reply.
func (c *Client) SendAndWait(ctx context.Context, topic string, args ...any) (channel.Reply, error) {
	env, err := channel.NewInvoke(topic, args...)
	if err != nil {
		return nil, err
	}

	replyCh := make(chan *channel.Envelope, 1)
	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, channel.ErrClosed
	}
	c.pending[env.ID] = replyCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, env.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.write(env); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return replyResult(topic, reply)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		// The reply may have been read just before the connection dropped.
		select {
		case reply := <-replyCh:
			return replyResult(topic, reply)
		default:
			return nil, channel.ErrClosed
		}
	}
}

func replyResult(topic string, reply *channel.Envelope) (channel.Reply, error) {
	if reply.Error != "" {
		return nil, &channel.RemoteError{Topic: topic, Message: reply.Error}
	}
	return channel.Reply(reply.Result), nil
}

// Subscribe registers a push handler. Handlers run on the read goroutine.
func (c *Client) Subscribe(topic string, handler channel.PushHandler) func() {
	return c.subs.Add(topic, handler)
}

// Close sends a close frame, tears the connection down and waits for the
// read goroutine to exit.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.markDone()

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug("Close frame not sent", zap.Error(err))
		}

		closeErr = c.conn.Close()
		<-c.readDone
		c.subs.Clear()
	})
	return closeErr
}
