package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/morezero/serene/pkg/commsutil"
	"github.com/morezero/serene/pkg/dispatcher"
)

const logPrefix = "transport:adapter"

// HeaderRequestID carries the envelope id into the request headers unless
// the caller set it.
const HeaderRequestID = "Request-Id"

// Adapter turns dispatch envelopes into dispatcher calls.
type Adapter struct {
	disp    *dispatcher.Dispatcher
	timeout time.Duration
}

// NewAdapter creates an Adapter. A non-positive timeout disables the
// server-side deadline; clients may still set one with TimeoutMs.
func NewAdapter(disp *dispatcher.Dispatcher, timeout time.Duration) *Adapter {
	return &Adapter{disp: disp, timeout: timeout}
}

type outcome struct {
	res *dispatcher.Response
	err error
}

// Handle dispatches req and builds the response envelope. A dispatch still
// running when the deadline passes is abandoned and reported as TIMEOUT.
func (a *Adapter) Handle(ctx context.Context, req *DispatchRequest) *DispatchResponse {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	slog.Debug(fmt.Sprintf("%s - id=%s operation=%s resource=%s", logPrefix, req.ID, req.Operation, req.Resource))

	if req.Operation == "" || req.Resource == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "operation and resource are required", false)
	}
	if req.Headers == nil {
		req.Headers = make(map[string]string, 1)
	}
	if _, ok := req.Headers[HeaderRequestID]; !ok {
		req.Headers[HeaderRequestID] = req.ID
	}

	r, err := a.disp.Request(req.Operation, req.Resource,
		dispatcher.WithID(req.ResourceID),
		dispatcher.WithQuery(req.Query),
		dispatcher.WithBody(req.Body),
		dispatcher.WithHeaders(req.Headers),
		dispatcher.WithCookies(req.Cookies),
	)
	if err != nil {
		return dispatchErrorToResponse(req.ID, err)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(req.Headers))
	ctx, cancel := a.withDeadline(ctx, req.TimeoutMs)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := r.Dispatch(ctx)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return dispatchErrorToResponse(req.ID, out.err)
		}
		return &DispatchResponse{
			ID:      req.ID,
			Ok:      true,
			Result:  out.res.Result,
			Status:  out.res.Status,
			Headers: out.res.Headers,
		}
	case <-ctx.Done():
		slog.Warn(fmt.Sprintf("%s - id=%s abandoned: %v", logPrefix, req.ID, ctx.Err()))
		return dispatchErrorToResponse(req.ID, ctx.Err())
	}
}

func (a *Adapter) withDeadline(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	timeout := a.timeout
	if timeoutMs > 0 {
		client := time.Duration(timeoutMs) * time.Millisecond
		if timeout <= 0 || client < timeout {
			timeout = client
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Subscribe answers dispatch envelopes published on subject. A non-empty
// queue joins a queue group so several instances can share the load.
func (a *Adapter) Subscribe(ctx context.Context, nc *comms.Conn, subject, queue string) (*comms.Subscription, error) {
	return a.subscribe(ctx, nc, subject, queue, "")
}

// SubscribeResource answers envelopes on the per-resource subject
// <base>.<resource>. Envelopes that omit the resource are routed to it.
func (a *Adapter) SubscribeResource(ctx context.Context, nc *comms.Conn, base, queue, resource string) (*comms.Subscription, error) {
	return a.subscribe(ctx, nc, commsutil.BuildResourceDispatchSubject(base, resource), queue, resource)
}

func (a *Adapter) subscribe(ctx context.Context, nc *comms.Conn, subject, queue, resource string) (*comms.Subscription, error) {
	handler := func(msg *comms.Msg) {
		a.serve(ctx, msg, resource)
	}

	var (
		sub *comms.Subscription
		err error
	)
	if queue != "" {
		sub, err = nc.QueueSubscribe(subject, queue, handler)
	} else {
		sub, err = nc.Subscribe(subject, handler)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return sub, nil
}

func (a *Adapter) serve(ctx context.Context, msg *comms.Msg, resource string) {
	var req DispatchRequest
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		a.respond(msg, errorResponse("", CodeInvalidRequest, "Failed to decode request", false))
		return
	}
	if req.Resource == "" {
		req.Resource = resource
	}
	mergeMsgHeaders(&req, msg.Header)

	a.respond(msg, a.Handle(ctx, &req))
}

func (a *Adapter) respond(msg *comms.Msg, resp *DispatchResponse) {
	if msg.Reply == "" {
		return
	}
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		data, _ = commsutil.EncodePayload(errorResponse(resp.ID, CodeHandlerError, "Failed to encode response", false))
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
	}
}

// mergeMsgHeaders copies COMMS message headers into the envelope headers.
// Envelope headers win on conflict.
func mergeMsgHeaders(req *DispatchRequest, h comms.Header) {
	if len(h) == 0 {
		return
	}
	if req.Headers == nil {
		req.Headers = make(map[string]string, len(h))
	}
	for k := range h {
		if _, ok := req.Headers[k]; !ok {
			req.Headers[k] = h.Get(k)
		}
	}
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *DispatchResponse {
	return &DispatchResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func dispatchErrorToResponse(id string, err error) *DispatchResponse {
	switch {
	case errors.Is(err, dispatcher.ErrUnsupportedOperation):
		return errorResponse(id, CodeUnsupportedOperation, err.Error(), false)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errorResponse(id, CodeTimeout, err.Error(), true)
	default:
		return errorResponse(id, CodeHandlerError, err.Error(), true)
	}
}
