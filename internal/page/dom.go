package page

import (
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventTarget is a minimal DOM EventTarget: listeners per event type plus
// the on<type> handler property.
type EventTarget struct {
	vm        *goja.Runtime
	logger    *zap.Logger
	Object    *goja.Object
	listeners map[string][]goja.Value
}

func newEventTarget(vm *goja.Runtime, logger *zap.Logger) *EventTarget {
	t := &EventTarget{
		vm:        vm,
		logger:    logger,
		Object:    vm.NewObject(),
		listeners: make(map[string][]goja.Value),
	}
	_ = t.Object.Set("addEventListener", t.addEventListener)
	_ = t.Object.Set("removeEventListener", t.removeEventListener)
	_ = t.Object.Set("dispatchEvent", t.dispatchEvent)
	return t
}

func (t *EventTarget) addEventListener(call goja.FunctionCall) goja.Value {
	eventType := call.Argument(0).String()
	listener := call.Argument(1)
	if _, ok := goja.AssertFunction(listener); !ok {
		return goja.Undefined()
	}
	for _, existing := range t.listeners[eventType] {
		if existing.StrictEquals(listener) {
			return goja.Undefined()
		}
	}
	t.listeners[eventType] = append(t.listeners[eventType], listener)
	return goja.Undefined()
}

func (t *EventTarget) removeEventListener(call goja.FunctionCall) goja.Value {
	eventType := call.Argument(0).String()
	listener := call.Argument(1)
	current := t.listeners[eventType]
	for i, existing := range current {
		if existing.StrictEquals(listener) {
			t.listeners[eventType] = append(current[:i:i], current[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

func (t *EventTarget) dispatchEvent(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).ToObject(t.vm)
	eventType := ""
	if v := event.Get("type"); v != nil {
		eventType = v.String()
	}
	t.fire(eventType, event)
	return t.vm.ToValue(true)
}

// Dispatch fires a new event of eventType on the target.
func (t *EventTarget) Dispatch(eventType string) {
	event := t.vm.NewObject()
	_ = event.Set("type", eventType)
	_ = event.Set("timeStamp", time.Now().UnixMilli())
	t.fire(eventType, event)
}

// fire calls the on<type> handler, then listeners in registration order.
// A throwing listener is logged and does not stop the others.
func (t *EventTarget) fire(eventType string, event *goja.Object) {
	_ = event.Set("target", t.Object)

	handlers := make([]goja.Value, 0, len(t.listeners[eventType])+1)
	if h := t.Object.Get("on" + eventType); h != nil {
		if _, ok := goja.AssertFunction(h); ok {
			handlers = append(handlers, h)
		}
	}
	handlers = append(handlers, t.listeners[eventType]...)

	for _, h := range handlers {
		fn, _ := goja.AssertFunction(h)
		if _, err := fn(t.Object, event); err != nil {
			t.logger.Warn("Event listener threw", zap.String("event", eventType), zap.Error(err))
		}
	}
}

// newEventConstructor returns the global Event constructor: new Event(type).
func newEventConstructor() func(goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		_ = call.This.Set("type", call.Argument(0).String())
		_ = call.This.Set("timeStamp", time.Now().UnixMilli())
		return nil
	}
}

// initConsole routes console.* to the page logger.
func (c *Context) initConsole(vm *goja.Runtime) error {
	console := vm.NewObject()
	logFunc := func(level zapcore.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = stringify(vm, arg)
			}
			if ce := c.logger.Check(level, "[JS Console]"); ce != nil {
				ce.Write(zap.String("message", strings.Join(parts, " ")))
			}
			return goja.Undefined()
		}
	}

	levels := map[string]zapcore.Level{
		"log":   zapcore.InfoLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"debug": zapcore.DebugLevel,
	}
	for name, level := range levels {
		if err := console.Set(name, logFunc(level)); err != nil {
			return err
		}
	}
	return vm.GlobalObject().Set("console", console)
}

// stringify renders objects through JSON.stringify and everything else
// through String().
func stringify(vm *goja.Runtime, v goja.Value) string {
	if _, isObj := v.(*goja.Object); isObj {
		if _, isFn := goja.AssertFunction(v); !isFn {
			if jsJSON := vm.Get("JSON"); jsJSON != nil {
				if fn, ok := goja.AssertFunction(jsJSON.ToObject(vm).Get("stringify")); ok {
					if out, err := fn(goja.Undefined(), v); err == nil && !goja.IsUndefined(out) {
						return out.String()
					}
				}
			}
		}
	}
	return v.String()
}
