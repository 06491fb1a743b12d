// Package dispatcher runs operation requests through an ordered chain of
// handlers that share one mutable response.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/serene/pkg/operation"
)

const (
	logPrefix  = "dispatcher:dispatch"
	tracerName = "github.com/morezero/serene/pkg/dispatcher"
)

// Dispatcher holds the handler chain. Registration is expected to finish
// before the first dispatch; dispatches may then run concurrently.
type Dispatcher struct {
	mu     sync.RWMutex
	chain  []entry
	tracer trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer used for dispatch and handler spans.
// The default is the global otel tracer, a no-op until a provider is installed.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// NewDispatcher creates a Dispatcher with an empty chain.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register appends h to the chain. h must be a HandlerFunc, a
// func(context.Context, *Request, *Response) error, or a Handler;
// anything else yields an *InvalidHandlerError.
func (d *Dispatcher) Register(h any, opts ...HandlerOption) error {
	e, err := newEntry(h)
	if err != nil {
		return err
	}
	return d.add(e, opts)
}

// Use is Register for setup code: it panics on an invalid handler and
// returns d so registrations can be chained.
func (d *Dispatcher) Use(h any, opts ...HandlerOption) *Dispatcher {
	if err := d.Register(h, opts...); err != nil {
		panic(err)
	}
	return d
}

// List registers h for list requests only.
func (d *Dispatcher) List(h any, opts ...HandlerOption) *Dispatcher {
	return d.useFor(operation.List, h, opts)
}

// Get registers h for get requests only.
func (d *Dispatcher) Get(h any, opts ...HandlerOption) *Dispatcher {
	return d.useFor(operation.Get, h, opts)
}

// Create registers h for create requests only.
func (d *Dispatcher) Create(h any, opts ...HandlerOption) *Dispatcher {
	return d.useFor(operation.Create, h, opts)
}

// Update registers h for update requests only.
func (d *Dispatcher) Update(h any, opts ...HandlerOption) *Dispatcher {
	return d.useFor(operation.Update, h, opts)
}

// Replace registers h for replace requests only.
func (d *Dispatcher) Replace(h any, opts ...HandlerOption) *Dispatcher {
	return d.useFor(operation.Replace, h, opts)
}

// Delete registers h for delete requests only.
func (d *Dispatcher) Delete(h any, opts ...HandlerOption) *Dispatcher {
	return d.useFor(operation.Delete, h, opts)
}

// RegisterFor appends h to the chain, filtered to the named operation.
func (d *Dispatcher) RegisterFor(operationName string, h any, opts ...HandlerOption) error {
	if _, err := operation.Resolve(operationName); err != nil {
		return err
	}
	e, err := newEntry(h)
	if err != nil {
		return err
	}
	// Apply a custom name before the operation prefix is added.
	for _, opt := range opts {
		opt(&e)
	}
	return d.add(e.onlyFor(operationName), nil)
}

func (d *Dispatcher) useFor(operationName string, h any, opts []HandlerOption) *Dispatcher {
	if err := d.RegisterFor(operationName, h, opts...); err != nil {
		panic(err)
	}
	return d
}

func (d *Dispatcher) add(e entry, opts []HandlerOption) error {
	for _, opt := range opts {
		opt(&e)
	}
	d.mu.Lock()
	d.chain = append(d.chain, e)
	i := len(d.chain) - 1
	d.mu.Unlock()
	slog.Debug(fmt.Sprintf("%s - registered handler %d: %s", logPrefix, i, e.name))
	return nil
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.chain)
}

// Request builds a request without dispatching it. It fails with an
// *UnsupportedOperationError when operationName is not a known operation.
func (d *Dispatcher) Request(operationName, resourceName string, opts ...RequestOption) (*Request, error) {
	req, err := newRequest(d, operationName, resourceName)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(req)
	}
	return req, nil
}

// Dispatch builds a request and dispatches it.
func (d *Dispatcher) Dispatch(ctx context.Context, operationName, resourceName string, opts ...RequestOption) (*Response, error) {
	req, err := d.Request(operationName, resourceName, opts...)
	if err != nil {
		return nil, err
	}
	return req.Dispatch(ctx)
}

func (d *Dispatcher) snapshot() []entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chain[:len(d.chain):len(d.chain)]
}
