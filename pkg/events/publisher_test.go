package events

import (
	"context"
	"testing"
)

const publisherTestPrefix = "events:publisher_test"

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishChanged(context.Background(), &ResourceChangedEvent{
		Resource:  "widgets",
		Operation: "create",
	})
	if err != nil {
		t.Errorf("%s - expected no error, got %v", publisherTestPrefix, err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *ResourceChangedEvent
	pub := NewCallbackPublisher(func(_ context.Context, event *ResourceChangedEvent) error {
		captured = event
		return nil
	})

	err := pub.PublishChanged(context.Background(), &ResourceChangedEvent{
		Resource:  "widgets",
		ID:        "w-1",
		Operation: "update",
		Revision:  5,
		Timestamp: "2025-01-01T00:00:00Z",
	})
	if err != nil {
		t.Errorf("%s - expected no error, got %v", publisherTestPrefix, err)
	}
	if captured == nil {
		t.Fatalf("%s - expected callback to be called", publisherTestPrefix)
	}
	if captured.Resource != "widgets" || captured.Revision != 5 {
		t.Errorf("%s - captured = %+v", publisherTestPrefix, captured)
	}
}
