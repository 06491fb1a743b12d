package resource

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// MemoryStore is an in-process Store. List filters are gjson paths
// evaluated against each body.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*Record
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]*Record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// List returns the matching records ordered by creation time, then id.
func (s *MemoryStore) List(_ context.Context, params ListParams) ([]Record, int, error) {
	s.mu.RLock()
	var matched []Record
	for _, rec := range s.data[params.Resource] {
		if matches(rec.Body, params.Filter) {
			matched = append(matched, clone(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Created.Equal(matched[j].Created) {
			return matched[i].Created.Before(matched[j].Created)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if params.Offset >= total {
		return []Record{}, total, nil
	}
	end := total
	if params.Limit > 0 && params.Offset+params.Limit < end {
		end = params.Offset + params.Limit
	}
	return matched[params.Offset:end], total, nil
}

// Get returns one record.
func (s *MemoryStore) Get(_ context.Context, resource, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[resource][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(rec)
	return &out, nil
}

// Create stores a new record.
func (s *MemoryStore) Create(_ context.Context, resource, id string, body []byte) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.data[resource]
	if !ok {
		byID = make(map[string]*Record)
		s.data[resource] = byID
	}
	if _, exists := byID[id]; exists {
		return nil, ErrConflict
	}
	now := s.now()
	rec := &Record{
		Resource: resource,
		ID:       id,
		Body:     append([]byte(nil), body...),
		Revision: 1,
		Created:  now,
		Modified: now,
	}
	byID[id] = rec
	out := clone(rec)
	return &out, nil
}

// Update merges the top-level fields of patch into the stored body. Keys are
// taken literally, matching jsonb concatenation in Postgres.
func (s *MemoryStore) Update(_ context.Context, resource, id string, patch []byte) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[resource][id]
	if !ok {
		return nil, ErrNotFound
	}

	body, err := mergeFields(rec.Body, patch)
	if err != nil {
		return nil, err
	}
	return s.commit(rec, body), nil
}

// Replace overwrites the stored body.
func (s *MemoryStore) Replace(_ context.Context, resource, id string, body []byte) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[resource][id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.commit(rec, append([]byte(nil), body...)), nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, resource, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[resource][id]; !ok {
		return ErrNotFound
	}
	delete(s.data[resource], id)
	return nil
}

// commit must be called with s.mu held.
func (s *MemoryStore) commit(rec *Record, body []byte) *Record {
	rec.Body = body
	rec.Revision++
	rec.Modified = s.now()
	out := clone(rec)
	return &out
}

func matches(body []byte, filter map[string]string) bool {
	for path, want := range filter {
		got := gjson.GetBytes(body, path)
		if !got.Exists() || got.String() != want {
			return false
		}
	}
	return true
}

func clone(rec *Record) Record {
	out := *rec
	out.Body = append([]byte(nil), rec.Body...)
	return out
}

// mergeFields overwrites the top-level keys of body with those of patch.
func mergeFields(body, patch []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage, len(fields))
	}
	for k, v := range fields {
		doc[k] = v
	}
	return json.Marshal(doc)
}
