// Package events publishes change events for successful write requests.
package events

// ResourceChangedEvent is emitted after a write operation succeeds.
type ResourceChangedEvent struct {
	Resource  string `json:"resource"`
	ID        string `json:"id,omitempty"`
	Operation string `json:"operation"`
	Revision  int    `json:"revision,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}
