// Package resource serves the six request operations from a document store.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store when the record does not exist.
	ErrNotFound = errors.New("resource: not found")
	// ErrConflict is returned by a Store when creating an id that exists.
	ErrConflict = errors.New("resource: already exists")
)

// Record is one stored document.
type Record struct {
	Resource string          `json:"resource"`
	ID       string          `json:"id"`
	Body     json.RawMessage `json:"body"`
	Revision int             `json:"revision"`
	Created  time.Time       `json:"created"`
	Modified time.Time       `json:"modified"`
}

// ListParams holds parameters for Store.List.
type ListParams struct {
	Resource string
	// Filter maps a JSON path inside the body to the required value.
	Filter map[string]string
	Limit  int
	Offset int
}

// ListResult is the response result for list requests.
type ListResult struct {
	Items  []Record `json:"items"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// Store persists documents grouped by resource name. Bodies are JSON objects.
type Store interface {
	List(ctx context.Context, params ListParams) ([]Record, int, error)
	Get(ctx context.Context, resource, id string) (*Record, error)
	Create(ctx context.Context, resource, id string, body []byte) (*Record, error)
	// Update merges the top-level fields of patch into the stored body.
	Update(ctx context.Context, resource, id string, patch []byte) (*Record, error)
	Replace(ctx context.Context, resource, id string, body []byte) (*Record, error)
	Delete(ctx context.Context, resource, id string) error
}
