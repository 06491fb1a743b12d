package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// reduce walks the chain for req. Before every step it stops when the
// response has ended or the chain is exhausted; a handler error stops the
// walk and is returned as is.
func (d *Dispatcher) reduce(ctx context.Context, req *Request) (*Response, error) {
	chain := d.snapshot()
	res := req.response

	slog.Debug(fmt.Sprintf("%s - dispatching %s:%s (id=%v)", logPrefix, req.Operation.Name, req.ResourceName, req.ID))

	ctx, span := d.tracer.Start(ctx, "dispatch "+req.Operation.Name+":"+req.ResourceName,
		trace.WithAttributes(
			attribute.String("serene.operation", req.Operation.Name),
			attribute.String("serene.resource", req.ResourceName),
			attribute.Int("serene.handlers", len(chain)),
		))
	defer span.End()

	for i := 0; !res.Ended() && i < len(chain); i++ {
		if err := ctx.Err(); err != nil {
			fail(span, err)
			return nil, err
		}
		if err := d.step(ctx, i, chain[i], req, res); err != nil {
			fail(span, err)
			return nil, err
		}
	}

	span.SetAttributes(attribute.Bool("serene.ended", res.Ended()))
	slog.Debug(fmt.Sprintf("%s - dispatched successfully", logPrefix))
	return res, nil
}

func (d *Dispatcher) step(ctx context.Context, i int, e entry, req *Request, res *Response) error {
	slog.Debug(fmt.Sprintf("%s - running handler %d: %s", logPrefix, i, e.name))

	ctx, span := d.tracer.Start(ctx, e.name, trace.WithAttributes(attribute.Int("serene.handler.index", i)))
	defer span.End()

	if err := e.fn(ctx, req, res); err != nil {
		fail(span, err)
		return err
	}
	return nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
