// Package page hosts a page context: a goja runtime driven by a single event
// loop goroutine, exposing window, document and history objects that the
// bridge shim overrides.
package page

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// DefaultTimeout is the fallback script timeout if the context has no deadline.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("page context closed")

// Context is one page context. All JavaScript objects it owns may only be
// touched on the loop goroutine, i.e. inside Do or Schedule callbacks.
type Context struct {
	logger *zap.Logger
	loop   *eventloop.EventLoop

	vm       *goja.Runtime
	window   *goja.Object
	document *EventTarget
	history  *goja.Object

	// script is the context of the RunScript call on the loop, if any.
	// Loop goroutine only.
	script context.Context

	closed    atomic.Bool
	stopped   chan struct{}
	closeOnce sync.Once
}

// New starts the event loop and sets up the page globals.
func New(logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Context{
		logger:  logger.Named("page"),
		loop:    eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		stopped: make(chan struct{}),
	}
	c.loop.Start()

	if err := c.Do(context.Background(), c.initGlobals); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize page globals: %w", err)
	}
	return c, nil
}

func (c *Context) initGlobals(vm *goja.Runtime) error {
	c.vm = vm
	c.window = vm.GlobalObject()
	c.document = newEventTarget(vm, c.logger.Named("document"))
	c.history = vm.NewObject()

	for name, value := range map[string]any{
		"window":   c.window,
		"self":     c.window,
		"document": c.document.Object,
		"history":  c.history,
		"Event":    newEventConstructor(),
	} {
		if err := c.window.Set(name, value); err != nil {
			return fmt.Errorf("failed to set %q global: %w", name, err)
		}
	}
	return c.initConsole(vm)
}

// Window returns the global object. Loop goroutine only.
func (c *Context) Window() *goja.Object { return c.window }

// Document returns the document object. Loop goroutine only.
func (c *Context) Document() *goja.Object { return c.document.Object }

// History returns the history object. Loop goroutine only.
func (c *Context) History() *goja.Object { return c.history }

// ScriptContext returns the context of the script currently running on the
// loop, or context.Background() between scripts. Loop goroutine only.
func (c *Context) ScriptContext() context.Context {
	if c.script == nil {
		return context.Background()
	}
	return c.script
}

// DispatchDocumentEvent fires a plain event of the given type on the
// document. Loop goroutine only.
func (c *Context) DispatchDocumentEvent(eventType string) {
	c.document.Dispatch(eventType)
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop goroutine itself.
func (c *Context) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if c.closed.Load() {
		return ErrClosed
	}

	errCh := make(chan error, 1)
	c.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("panic on page loop: %v", r)
			}
		}()
		errCh <- fn(vm)
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrClosed
	}
}

// Schedule queues fn for the next loop turn without waiting. Jobs run in
// the order they were scheduled. Work scheduled after Close is dropped.
func (c *Context) Schedule(fn func(vm *goja.Runtime)) {
	if c.closed.Load() {
		c.logger.Debug("Dropping job scheduled after close")
		return
	}
	c.loop.RunOnLoop(fn)
}

// RunScript evaluates src on the loop and exports its completion value.
// If ctx carries no deadline DefaultTimeout applies.
func (c *Context) RunScript(ctx context.Context, name, src string) (any, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var result any
	err := c.Do(ctx, func(vm *goja.Runtime) error {
		interrupted := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			vm.Interrupt(ctx.Err())
			close(interrupted)
		})
		prev := c.script
		c.script = ctx
		defer func() {
			c.script = prev
			// An interrupt already in flight must land before it is cleared.
			if !stop() {
				<-interrupted
			}
			vm.ClearInterrupt()
		}()

		v, err := vm.RunScript(name, src)
		if err != nil {
			return classifyScriptError(ctx, err)
		}
		result = v.Export()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func classifyScriptError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("javascript execution interrupted: %w", context.Cause(ctx))
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ScriptError{Message: exception.Error(), Err: exception}
	}
	return fmt.Errorf("javascript error: %w", err)
}

// ScriptError is an uncaught exception thrown by page script.
type ScriptError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return "javascript exception: " + e.Message
}

// Unwrap exposes the exception, which in turn unwraps to the Go error a
// native binding threw, if any.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Close stops the loop. Queued jobs that have not started are discarded.
// It must not be called from the loop goroutine.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopped)
		c.loop.Stop()
	})
}
