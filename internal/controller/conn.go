package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pagebridge/internal/channel"
)

// Maximum frame size accepted from a page.
const maxFrameSize = 1 << 20

// conn is the controller end of one page connection.
type conn struct {
	logger       *zap.Logger
	ws           *websocket.Conn
	writeTimeout time.Duration
	limiter      *rate.Limiter

	writeMu sync.Mutex
}

var _ channel.Pusher = (*conn)(nil)

// Push implements channel.Pusher.
func (c *conn) Push(topic string, args ...any) error {
	env, err := channel.NewPush(topic, args...)
	if err != nil {
		return err
	}
	return c.write(env)
}

func (c *conn) write(env *channel.Envelope) error {
	data, err := channel.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// serve reads requests until the page disconnects or ctx ends. Requests
// are handled one at a time in arrival order.
func (c *conn) serve(ctx context.Context, h channel.Handler) {
	c.ws.SetReadLimit(maxFrameSize)

	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "controller shutting down")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				c.logger.Warn("Page connection read error", zap.Error(err))
			}
			return
		}

		env, err := channel.DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", zap.Error(err))
			continue
		}

		switch env.Kind {
		case channel.KindSend:
			if !c.limiter.Allow() {
				c.logger.Warn("One-way request rate exceeded, dropping", zap.String("topic", env.Topic))
				continue
			}
			if _, err := h.Serve(ctx, env.Request()); err != nil {
				c.logger.Warn("One-way request failed", zap.String("topic", env.Topic), zap.Error(err))
			}
		case channel.KindInvoke:
			result, serveErr := h.Serve(ctx, env.Request())
			reply, err := channel.NewReply(env.ID, result, serveErr)
			if err != nil {
				reply, _ = channel.NewReply(env.ID, nil, err)
			}
			if err := c.write(reply); err != nil {
				c.logger.Warn("Failed to send reply", zap.String("topic", env.Topic), zap.Error(err))
				return
			}
		default:
			c.logger.Warn("Unexpected frame from page", zap.String("kind", string(env.Kind)))
		}
	}
}
