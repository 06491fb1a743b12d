package dispatcher

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Handler is a step of the dispatch chain. A handler may read the request,
// mutate the response and call res.End to stop the chain. A non-nil error
// aborts the dispatch and is returned to the caller unchanged.
type Handler interface {
	Handle(ctx context.Context, req *Request, res *Response) error
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(ctx context.Context, req *Request, res *Response) error

// Handle calls f(ctx, req, res).
func (f HandlerFunc) Handle(ctx context.Context, req *Request, res *Response) error {
	return f(ctx, req, res)
}

// HandlerOption configures a registration.
type HandlerOption func(*entry)

// WithName sets the display name used in traces and debug logs.
func WithName(name string) HandlerOption {
	return func(e *entry) {
		e.name = name
	}
}

// entry is the normalised form every registered handler is stored as.
type entry struct {
	name string
	fn   HandlerFunc
}

func newEntry(h any) (entry, error) {
	switch v := h.(type) {
	case nil:
		return entry{}, &InvalidHandlerError{Type: "nil"}
	case HandlerFunc:
		if v == nil {
			return entry{}, &InvalidHandlerError{Type: "nil HandlerFunc"}
		}
		return entry{name: funcName(v), fn: v}, nil
	case func(context.Context, *Request, *Response) error:
		if v == nil {
			return entry{}, &InvalidHandlerError{Type: "nil func"}
		}
		return entry{name: funcName(v), fn: v}, nil
	case Handler:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return entry{}, &InvalidHandlerError{Type: fmt.Sprintf("nil %T", v)}
		}
		return entry{name: typeName(v), fn: v.Handle}, nil
	default:
		return entry{}, &InvalidHandlerError{Type: fmt.Sprintf("%T", h)}
	}
}

// onlyFor wraps e so the underlying handler runs only for the named operation.
// The wrapped entry still occupies its position in the chain.
func (e entry) onlyFor(opName string) entry {
	inner := e.fn
	e.fn = func(ctx context.Context, req *Request, res *Response) error {
		if req.Operation.Name != opName {
			return nil
		}
		return inner(ctx, req, res)
	}
	e.name = opName + ":" + e.name
	return e
}

func funcName(f any) string {
	fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer())
	if fn == nil {
		return "anonymous"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func typeName(h any) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", h), "*")
}
