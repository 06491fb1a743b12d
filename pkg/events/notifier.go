package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/morezero/serene/pkg/dispatcher"
	"github.com/morezero/serene/pkg/resource"
)

const notifierLogPrefix = "events:notifier"

// HeaderRequestID is copied into ResourceChangedEvent.RequestID when present
// on the request.
const HeaderRequestID = "Request-Id"

// Notifier is a handler that publishes a ResourceChangedEvent for every
// write operation that reached it with a 2xx integer status. Register it
// after the handlers that perform the write.
type Notifier struct {
	pub EventPublisher
	now func() time.Time
}

// NewNotifier creates a Notifier publishing to pub.
func NewNotifier(pub EventPublisher) *Notifier {
	return &Notifier{pub: pub, now: time.Now}
}

// Handle implements dispatcher.Handler. Publish failures are returned.
func (n *Notifier) Handle(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response) error {
	if !req.Operation.Write {
		return nil
	}
	status, ok := res.Status.(int)
	if !ok || status < 200 || status > 299 {
		return nil
	}

	event := &ResourceChangedEvent{
		Resource:  req.ResourceName,
		ID:        res.Headers[resource.HeaderResourceID],
		Operation: req.Operation.Name,
		Timestamp: n.now().UTC().Format(time.RFC3339),
	}
	if event.ID == "" && req.ID != nil {
		event.ID = fmt.Sprint(req.ID)
	}
	if rev, err := strconv.Atoi(res.Headers[resource.HeaderRevision]); err == nil {
		event.Revision = rev
	}
	if id, ok := req.Headers[HeaderRequestID]; ok {
		event.RequestID = id
	}

	if err := n.pub.PublishChanged(ctx, event); err != nil {
		return fmt.Errorf("%s - publish %s %s: %w", notifierLogPrefix, event.Operation, event.Resource, err)
	}
	return nil
}
