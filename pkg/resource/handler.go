package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/morezero/serene/pkg/dispatcher"
	"github.com/morezero/serene/pkg/operation"
)

const logPrefix = "resource:handler"

// Response headers set on successful operations.
const (
	HeaderResourceID = "Resource-Id"
	HeaderRevision   = "Revision"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Handler answers requests from a Store. It is registered as an object
// handler. Failures that the caller can fix (missing id, bad body, unknown
// record) set a 4xx status and end the response; store failures are
// returned as handler errors.
type Handler struct {
	store     Store
	resources map[string]bool
}

// NewHandler creates a Handler. When resources is non-empty the handler only
// serves those resource names and passes every other request along.
func NewHandler(store Store, resources ...string) *Handler {
	h := &Handler{store: store}
	if len(resources) > 0 {
		h.resources = make(map[string]bool, len(resources))
		for _, r := range resources {
			h.resources[r] = true
		}
	}
	return h
}

// Handle implements dispatcher.Handler.
func (h *Handler) Handle(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response) error {
	if h.resources != nil && !h.resources[req.ResourceName] {
		return nil
	}

	switch req.Operation.Name {
	case operation.List:
		return h.list(ctx, req, res)
	case operation.Create:
		return h.create(ctx, req, res)
	}

	id := idString(req.ID)
	if id == "" {
		reject(res, 400, "id is required for "+req.Operation.Name)
		return nil
	}

	var (
		rec *Record
		err error
	)
	switch req.Operation.Name {
	case operation.Get:
		rec, err = h.store.Get(ctx, req.ResourceName, id)
	case operation.Update, operation.Replace:
		body, ok := objectBody(req.Body)
		if !ok {
			reject(res, 400, "body must be a JSON object")
			return nil
		}
		if req.Operation.Name == operation.Update {
			rec, err = h.store.Update(ctx, req.ResourceName, id, body)
		} else {
			rec, err = h.store.Replace(ctx, req.ResourceName, id, body)
		}
	case operation.Delete:
		err = h.store.Delete(ctx, req.ResourceName, id)
	}

	if errors.Is(err, ErrNotFound) {
		reject(res, 404, fmt.Sprintf("%s %s not found", req.ResourceName, id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s - %s %s: %w", logPrefix, req.Operation.Name, req.ResourceName, err)
	}

	if rec == nil {
		res.Status = 204
		res.Result = nil
		res.Headers[HeaderResourceID] = id
		return nil
	}
	accept(res, 200, rec)
	return nil
}

func (h *Handler) list(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response) error {
	params := ListParams{
		Resource: req.ResourceName,
		Filter:   map[string]string{},
		Limit:    defaultLimit,
	}
	for k, v := range req.Query {
		switch k {
		case "limit":
			n, ok := intValue(v)
			if !ok || n < 1 {
				reject(res, 400, "limit must be a positive integer")
				return nil
			}
			params.Limit = min(n, maxLimit)
		case "offset":
			n, ok := intValue(v)
			if !ok || n < 0 {
				reject(res, 400, "offset must be a non-negative integer")
				return nil
			}
			params.Offset = n
		default:
			params.Filter[k] = fmt.Sprint(v)
		}
	}

	items, total, err := h.store.List(ctx, params)
	if err != nil {
		return fmt.Errorf("%s - list %s: %w", logPrefix, req.ResourceName, err)
	}
	if items == nil {
		items = []Record{}
	}
	res.Status = 200
	res.Result = &ListResult{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset}
	return nil
}

func (h *Handler) create(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response) error {
	body, ok := objectBody(req.Body)
	if !ok {
		reject(res, 400, "body must be a JSON object")
		return nil
	}
	id := idString(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	rec, err := h.store.Create(ctx, req.ResourceName, id, body)
	if errors.Is(err, ErrConflict) {
		reject(res, 409, fmt.Sprintf("%s %s already exists", req.ResourceName, id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s - create %s: %w", logPrefix, req.ResourceName, err)
	}
	slog.Debug(fmt.Sprintf("%s - created %s %s", logPrefix, req.ResourceName, id))
	accept(res, 201, rec)
	return nil
}

// --- helpers ---

// ErrorResult is the response result of a rejected request.
type ErrorResult struct {
	Error string `json:"error"`
}

func reject(res *dispatcher.Response, status int, message string) {
	res.Status = status
	res.Result = &ErrorResult{Error: message}
	res.End()
}

func accept(res *dispatcher.Response, status int, rec *Record) {
	res.Status = status
	res.Result = rec
	res.Headers[HeaderResourceID] = rec.ID
	res.Headers[HeaderRevision] = strconv.Itoa(rec.Revision)
}

func idString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// objectBody returns body as JSON bytes when it encodes a JSON object.
func objectBody(body any) ([]byte, bool) {
	var data []byte
	switch v := body.(type) {
	case nil:
		return nil, false
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		data = b
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, false
	}
	return data, true
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
