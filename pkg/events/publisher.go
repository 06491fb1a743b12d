package events

import "context"

// EventPublisher publishes resource change events.
type EventPublisher interface {
	PublishChanged(ctx context.Context, event *ResourceChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishChanged is a no-op.
func (p *NoOpPublisher) PublishChanged(_ context.Context, _ *ResourceChangedEvent) error {
	return nil
}

// CallbackPublisher hands every event to a function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ResourceChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ResourceChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishChanged calls the callback.
func (p *CallbackPublisher) PublishChanged(ctx context.Context, event *ResourceChangedEvent) error {
	return p.callback(ctx, event)
}
