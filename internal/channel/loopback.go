package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// DefaultQueueSize is the loopback request queue depth used when the
// caller passes a non-positive size.
const DefaultQueueSize = 256

// ErrQueueFull is returned by SendOneWay when the loopback queue cannot
// take another notification without blocking the sender.
var ErrQueueFull = errors.New("loopback queue full")

type loopbackJob struct {
	ctx   context.Context
	req   Request
	reply chan loopbackResult
}

type loopbackResult struct {
	reply Reply
	err   error
}

// Loopback connects a page context to an in-process controller. Requests
// of both kinds share one FIFO queue served by a single worker, so the
// controller observes them in the order the page issued them. Arguments
// and results are JSON encoded exactly as on a real transport.
type Loopback struct {
	logger *zap.Logger
	subs   Subscriptions
	jobs   chan loopbackJob

	mu      sync.RWMutex
	handler Handler
	closed  bool

	bindOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

var (
	_ Channel = (*Loopback)(nil)
	_ Pusher  = (*Loopback)(nil)
)

// NewLoopback creates an unbound loopback. Requests queue up until Bind.
func NewLoopback(logger *zap.Logger, queueSize int) *Loopback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loopback{
		logger: logger.Named("loopback"),
		jobs:   make(chan loopbackJob, queueSize),
		done:   make(chan struct{}),
	}
}

// Bind attaches the controller side and starts serving queued requests.
// Only the first call has any effect.
func (l *Loopback) Bind(h Handler) {
	l.bindOnce.Do(func() {
		l.mu.Lock()
		l.handler = h
		l.mu.Unlock()

		l.wg.Add(1)
		go l.serve()
	})
}

func (l *Loopback) serve() {
	defer l.wg.Done()
	l.mu.RLock()
	h := l.handler
	l.mu.RUnlock()

	for {
		select {
		case <-l.done:
			return
		case job := <-l.jobs:
			l.run(h, job)
		}
	}
}

func (l *Loopback) run(h Handler, job loopbackJob) {
	result, err := h.Serve(job.ctx, job.req)
	if job.reply == nil {
		if err != nil {
			l.logger.Warn("One-way request failed on the controller side",
				zap.String("topic", job.req.Topic), zap.Error(err))
		}
		return
	}

	if err != nil {
		job.reply <- loopbackResult{err: &RemoteError{Topic: job.req.Topic, Message: err.Error()}}
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		job.reply <- loopbackResult{err: fmt.Errorf("failed to encode reply: %w", err)}
		return
	}
	job.reply <- loopbackResult{reply: Reply(raw)}
}

func (l *Loopback) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// SendOneWay queues a notification and returns at once.
func (l *Loopback) SendOneWay(topic string, args ...any) error {
	if l.isClosed() {
		return ErrClosed
	}
	encoded, err := EncodeArgs(args...)
	if err != nil {
		return err
	}
	select {
	case l.jobs <- loopbackJob{ctx: context.Background(), req: Request{Topic: topic, Args: encoded}}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SendAndWait queues a request and blocks for the controller's answer.
func (l *Loopback) SendAndWait(ctx context.Context, topic string, args ...any) (Reply, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	encoded, err := EncodeArgs(args...)
	if err != nil {
		return nil, err
	}

	job := loopbackJob{
		ctx:   ctx,
		req:   Request{Topic: topic, Args: encoded, Sync: true},
		reply: make(chan loopbackResult, 1),
	}
	select {
	case l.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}

	select {
	case res := <-job.reply:
		return res.reply, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

// Subscribe registers a push handler.
func (l *Loopback) Subscribe(topic string, handler PushHandler) func() {
	return l.subs.Add(topic, handler)
}

// Push delivers a controller push to the page's subscribers. Delivery is
// synchronous, so pushes from one goroutine arrive in order.
func (l *Loopback) Push(topic string, args ...any) error {
	if l.isClosed() {
		return ErrClosed
	}
	encoded, err := EncodeArgs(args...)
	if err != nil {
		return err
	}
	if n := l.subs.Deliver(topic, encoded); n == 0 {
		l.logger.Debug("Push without subscribers", zap.String("topic", topic))
	}
	return nil
}

// Close stops the worker and fails waiting round-trips with ErrClosed.
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		close(l.done)
		l.wg.Wait()
		l.subs.Clear()
	})
	return nil
}
