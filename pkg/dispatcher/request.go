package dispatcher

import (
	"context"

	"github.com/morezero/serene/pkg/operation"
)

// Request is the envelope handed to every handler of a dispatch.
//
// Operation, ResourceName and ID identify the target. Query, Body, Headers
// and Cookies may be changed freely until Dispatch is called.
type Request struct {
	Operation    operation.Operation
	ResourceName string
	ID           any
	Query        map[string]any
	Body         any
	Headers      map[string]string
	Cookies      map[string]string

	response   *Response
	dispatcher *Dispatcher
}

// RequestOption overrides a field of a request under construction.
type RequestOption func(*Request)

// WithID sets the target id. WithID(nil) explicitly clears an inherited id.
func WithID(id any) RequestOption {
	return func(r *Request) {
		r.ID = id
	}
}

// WithQuery sets the query parameters. A nil map keeps the empty default.
func WithQuery(query map[string]any) RequestOption {
	return func(r *Request) {
		if query != nil {
			r.Query = query
		}
	}
}

// WithBody sets the payload.
func WithBody(body any) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// WithHeaders sets the headers map. The map is used as is, not copied.
// A nil map keeps the current value.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		if headers != nil {
			r.Headers = headers
		}
	}
}

// WithCookies sets the cookies map. The map is used as is, not copied.
// A nil map keeps the current value.
func WithCookies(cookies map[string]string) RequestOption {
	return func(r *Request) {
		if cookies != nil {
			r.Cookies = cookies
		}
	}
}

func newRequest(d *Dispatcher, operationName, resourceName string) (*Request, error) {
	op, err := operation.Resolve(operationName)
	if err != nil {
		return nil, err
	}
	return &Request{
		Operation:    op,
		ResourceName: resourceName,
		Query:        map[string]any{},
		Headers:      map[string]string{},
		Cookies:      map[string]string{},
		response:     NewResponse(),
		dispatcher:   d,
	}, nil
}

// Response returns the response owned by this request.
func (r *Request) Response() *Response {
	return r.response
}

// Subrequest builds a new request on the same dispatcher. An empty
// resourceName falls back to r's; the id falls back to r's unless WithID is
// given. Headers and cookies are shared with r by reference. The subrequest
// has its own response and is not dispatched.
func (r *Request) Subrequest(operationName, resourceName string, opts ...RequestOption) (*Request, error) {
	if resourceName == "" {
		resourceName = r.ResourceName
	}
	sub, err := newRequest(r.dispatcher, operationName, resourceName)
	if err != nil {
		return nil, err
	}
	sub.ID = r.ID
	sub.Headers = r.Headers
	sub.Cookies = r.Cookies
	for _, opt := range opts {
		opt(sub)
	}
	return sub, nil
}

// Dispatch runs the dispatcher's handler chain for this request. On success
// it returns the request's response; on failure it returns the first error
// raised by a handler, or the context's error if ctx ends between steps.
func (r *Request) Dispatch(ctx context.Context) (*Response, error) {
	return r.dispatcher.reduce(ctx, r)
}
