package bridge

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/bytedance/sonic"

	"github.com/alx-home/webview/internal/werr"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// binding adapts an arbitrary Go function to the wire calling convention.
// The argument-type tuple is fixed at registration from the function's
// signature and drives decoding and validation of inbound params.
type binding struct {
	name     string
	fn       reflect.Value
	args     []reflect.Type
	wantsCtx bool
	hasValue bool
	hasErr   bool
}

// newBinding validates fn and derives its argument schema. Accepted shapes:
// func([ctx,] args...) / (error) / (T) / (T, error).
func newBinding(name string, fn interface{}) (*binding, error) {
	if name == "" {
		return nil, werr.New(werr.CodeInvalidArgument, "binding name must not be empty")
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, werr.New(werr.CodeInvalidArgument, "binding %q: handler must be a function", name)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, werr.New(werr.CodeInvalidArgument, "binding %q: variadic handlers are not supported", name)
	}

	bd := &binding{name: name, fn: v}

	start := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		bd.wantsCtx = true
		start = 1
	}
	for i := start; i < t.NumIn(); i++ {
		bd.args = append(bd.args, t.In(i))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errType {
			bd.hasErr = true
		} else {
			bd.hasValue = true
		}
	case 2:
		if t.Out(1) != errType {
			return nil, werr.New(werr.CodeInvalidArgument,
				"binding %q: second result must be error", name)
		}
		bd.hasValue = true
		bd.hasErr = true
	default:
		return nil, werr.New(werr.CodeInvalidArgument,
			"binding %q: handler may return at most (value, error)", name)
	}

	return bd, nil
}

// call decodes paramsJSON against the schema, invokes the handler, and
// serializes its result. A handler panic is caught here and reported as an
// error result; the bridge never crashes on handler misbehavior.
func (bd *binding) call(ctx context.Context, paramsJSON string) (result string, hasResult bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, hasResult = "", false
			err = werr.New(werr.CodeUnspecified, "binding %q panicked: %v", bd.name, r)
		}
	}()

	var raw []json.RawMessage
	if uerr := sonic.UnmarshalString(paramsJSON, &raw); uerr != nil {
		return "", false, werr.Wrap(werr.CodeInvalidArgument, uerr,
			"binding %q: malformed params", bd.name)
	}
	if len(raw) != len(bd.args) {
		return "", false, werr.New(werr.CodeInvalidArgument,
			"binding %q: expected %d argument(s), got %d", bd.name, len(bd.args), len(raw))
	}

	in := make([]reflect.Value, 0, len(bd.args)+1)
	if bd.wantsCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, argType := range bd.args {
		ptr := reflect.New(argType)
		if uerr := sonic.Unmarshal(raw[i], ptr.Interface()); uerr != nil {
			return "", false, werr.Wrap(werr.CodeInvalidArgument, uerr,
				"binding %q: argument %d does not decode into %s", bd.name, i, argType)
		}
		in = append(in, ptr.Elem())
	}

	out := bd.fn.Call(in)

	if bd.hasErr {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return "", false, errVal.Interface().(error)
		}
	}
	if !bd.hasValue {
		return "", false, nil
	}

	encoded, merr := sonic.MarshalString(out[0].Interface())
	if merr != nil {
		return "", false, werr.Wrap(werr.CodeUnspecified, merr,
			"binding %q: result serialization failed", bd.name)
	}
	return encoded, true, nil
}
