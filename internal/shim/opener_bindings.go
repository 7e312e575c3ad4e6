package shim

import (
	"context"
	"errors"

	"github.com/dop251/goja"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// openerObject returns the script object for remote window id, building
// it on first access. Page loop only.
func (b *Bridge) openerObject(vm *goja.Runtime, id int64) goja.Value {
	if obj, ok := b.openerObjects[id]; ok {
		return obj
	}
	w := b.Opener.GetOrCreate(id)
	obj := newRemoteWindowObject(vm, w, b)
	b.openerObjects[id] = obj
	return obj
}

func newRemoteWindowObject(vm *goja.Runtime, w *RemoteWindow, b *Bridge) *goja.Object {
	obj := vm.NewObject()

	// Every member throws the channel error into script on failure.
	must := func(reply channel.Reply, err error) goja.Value {
		if err == nil {
			var v goja.Value
			if v, err = replyValue(vm, reply); err == nil {
				return v
			}
		}
		panic(vm.NewGoError(err))
	}
	done := func(err error) goja.Value {
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	}

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		ctx, stop := b.scriptContext()
		defer stop()
		return must(w.Get(ctx, call.Argument(0).String()))
	})
	_ = obj.Set("call", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		var args []any
		if len(call.Arguments) > 1 {
			args = exportAll(call.Arguments[1:])
		}
		ctx, stop := b.scriptContext()
		defer stop()
		return must(w.Call(ctx, name, args...))
	})
	_ = obj.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		targetOrigin := "*"
		if t := call.Argument(1); !goja.IsUndefined(t) {
			targetOrigin = t.String()
		}
		ctx, stop := b.scriptContext()
		defer stop()
		return done(w.PostMessage(ctx, call.Argument(0).Export(), targetOrigin))
	})
	for name, method := range map[string]func(context.Context) error{
		"focus": w.Focus,
		"blur":  w.Blur,
		"close": w.Close,
	} {
		_ = obj.Set(name, func(goja.FunctionCall) goja.Value {
			ctx, stop := b.scriptContext()
			defer stop()
			return done(method(ctx))
		})
	}
	_ = obj.Set("eval", func(call goja.FunctionCall) goja.Value {
		ctx, stop := b.scriptContext()
		defer stop()
		return must(w.Eval(ctx, call.Argument(0).String()))
	})

	accessors := map[string]func(goja.FunctionCall) goja.Value{
		protocol.MemberClosed: func(goja.FunctionCall) goja.Value {
			ctx, stop := b.scriptContext()
			defer stop()
			closed, err := w.Closed(ctx)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(closed)
		},
		protocol.MemberLocation: func(goja.FunctionCall) goja.Value {
			ctx, stop := b.scriptContext()
			defer stop()
			location, err := w.Location(ctx)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(location)
		},
	}
	for name, getter := range accessors {
		_ = obj.DefineAccessorProperty(name, vm.ToValue(getter), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	_ = obj.DefineDataProperty("id", vm.ToValue(w.ID()), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

// replyValue turns a reply into a script value; an empty or null reply is
// undefined.
func replyValue(vm *goja.Runtime, reply channel.Reply) (goja.Value, error) {
	var v any
	if err := reply.Decode(&v); err != nil {
		if errors.Is(err, channel.ErrEmptyReply) {
			return goja.Undefined(), nil
		}
		return nil, err
	}
	if v == nil {
		return goja.Undefined(), nil
	}
	return vm.ToValue(v), nil
}

func exportAll(values []goja.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Export()
	}
	return out
}
