// Package shim makes a page context behave like a standalone page while
// the controller process owns dialogs, navigation, opener windows and
// visibility. Install wires the four bridge components into the page's
// window, document and history objects.
package shim

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// PageContext is the surface of a page the bridge installs itself into.
// Window, Document, History, ScriptContext and DispatchDocumentEvent may
// only be used on the page loop.
type PageContext interface {
	Do(ctx context.Context, fn func(vm *goja.Runtime) error) error
	Schedule(fn func(vm *goja.Runtime))
	ScriptContext() context.Context
	Window() *goja.Object
	Document() *goja.Object
	History() *goja.Object
	DispatchDocumentEvent(eventType string)
}

// Bridge is the installed shim of one page context.
type Bridge struct {
	Dialogs    *Dialogs
	History    *History
	Visibility *Visibility
	// Opener is nil unless the page was launched with an opener id.
	Opener *OpenerProxy

	logger *zap.Logger
	page   PageContext

	// ctx is cancelled on Close and releases blocked round-trips.
	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe func()
	closeOnce   sync.Once

	// openerObjects caches the script side of remote window handles.
	// Page loop only.
	openerObjects map[int64]*goja.Object
}

// Install binds the bridge into pc. Page script running afterwards sees
// the overridden alert, confirm, prompt, history and document members,
// plus window.opener when launch carries an opener id.
func Install(ctx context.Context, pc PageContext, ch channel.Channel, launch LaunchConfig, opts Options) (*Bridge, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("bridge")

	b := &Bridge{
		Dialogs:       NewDialogs(ch, opts),
		History:       NewHistory(ch, opts),
		Visibility:    NewVisibility(launch.HiddenPage, pc.DispatchDocumentEvent, opts.Logger),
		logger:        logger,
		page:          pc,
		openerObjects: make(map[int64]*goja.Object),
	}
	if launch.OpenerID != nil {
		b.Opener = NewOpenerProxy(ch, opts)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	err := pc.Do(ctx, func(vm *goja.Runtime) error {
		if err := b.installDialogs(vm, pc.Window()); err != nil {
			return err
		}
		if err := b.installHistory(vm, pc.History()); err != nil {
			return err
		}
		if err := b.installDocument(vm, pc.Document()); err != nil {
			return err
		}
		if b.Opener != nil {
			return b.installOpener(vm, pc.Window(), *launch.OpenerID)
		}
		return nil
	})
	if err != nil {
		b.cancel()
		return nil, fmt.Errorf("failed to install bridge: %w", err)
	}

	b.unsubscribe = ch.Subscribe(protocol.TopicVisibility, func(args channel.Args) {
		raw, err := args.String(0)
		if err != nil {
			logger.Warn("Ignoring malformed visibility push", zap.Error(err))
			return
		}
		pc.Schedule(func(*goja.Runtime) {
			b.Visibility.Apply(raw)
		})
	})

	logger.Debug("Bridge installed",
		zap.Bool("hidden_page", launch.HiddenPage),
		zap.Bool("has_opener", launch.OpenerID != nil))
	return b, nil
}

// Close stops listening for pushes and fails round-trips still waiting.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		b.cancel()
	})
}

// scriptContext bounds a round-trip made from page script. It ends with the
// running script or with Close, whichever comes first. Page loop only.
func (b *Bridge) scriptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(b.page.ScriptContext())
	stop := context.AfterFunc(b.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (b *Bridge) installDialogs(vm *goja.Runtime, window *goja.Object) error {
	alert := func(call goja.FunctionCall) goja.Value {
		message := textOrEmpty(call.Argument(0))
		title := textOrEmpty(call.Argument(1))
		ctx, done := b.scriptContext()
		defer done()
		if err := b.Dialogs.Alert(ctx, message, title); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}

	confirm := func(call goja.FunctionCall) goja.Value {
		message := textOrEmpty(call.Argument(0))
		title := ""
		if t := call.Argument(1); !goja.IsNull(t) {
			title = textOrEmpty(t)
		}
		ctx, done := b.scriptContext()
		defer done()
		ok, err := b.Dialogs.Confirm(ctx, message, title)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(ok)
	}

	prompt := func(goja.FunctionCall) goja.Value {
		panic(vm.NewGoError(b.Dialogs.Prompt()))
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"alert":   alert,
		"confirm": confirm,
		"prompt":  prompt,
	} {
		if err := window.Set(name, fn); err != nil {
			return fmt.Errorf("failed to set window.%s: %w", name, err)
		}
	}
	return nil
}

func (b *Bridge) installHistory(vm *goja.Runtime, history *goja.Object) error {
	// Send failures never reach page script.
	logged := func(op string, err error) goja.Value {
		if err != nil {
			b.logger.Warn("History operation not delivered", zap.String("operation", op), zap.Error(err))
		}
		return goja.Undefined()
	}

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"back": func(goja.FunctionCall) goja.Value {
			return logged(string(protocol.OpGoBack), b.History.Back())
		},
		"forward": func(goja.FunctionCall) goja.Value {
			return logged(string(protocol.OpGoForward), b.History.Forward())
		},
		"go": func(call goja.FunctionCall) goja.Value {
			offset := int(call.Argument(0).ToInteger())
			return logged(string(protocol.OpGoToOffset), b.History.Go(offset))
		},
	}
	for name, fn := range methods {
		if err := history.Set(name, fn); err != nil {
			return fmt.Errorf("failed to set history.%s: %w", name, err)
		}
	}

	length := vm.ToValue(func(goja.FunctionCall) goja.Value {
		ctx, done := b.scriptContext()
		defer done()
		n, err := b.History.Length(ctx)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(n)
	})
	if err := history.DefineAccessorProperty("length", length, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("failed to define history.length: %w", err)
	}
	return nil
}

func (b *Bridge) installDocument(vm *goja.Runtime, document *goja.Object) error {
	hidden := vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(b.Visibility.Hidden())
	})
	state := vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(string(b.Visibility.State()))
	})
	if err := document.DefineAccessorProperty("hidden", hidden, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("failed to define document.hidden: %w", err)
	}
	if err := document.DefineAccessorProperty("visibilityState", state, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("failed to define document.visibilityState: %w", err)
	}
	return nil
}

func (b *Bridge) installOpener(vm *goja.Runtime, window *goja.Object, id int64) error {
	getter := vm.ToValue(func(goja.FunctionCall) goja.Value {
		return b.openerObject(vm, id)
	})
	if err := window.DefineAccessorProperty("opener", getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return fmt.Errorf("failed to define window.opener: %w", err)
	}
	return nil
}

// textOrEmpty coerces a script argument to text. A missing or undefined
// argument becomes "".
func textOrEmpty(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return ""
	}
	return v.String()
}
