package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/serene/pkg/dispatcher"
)

const adapterTestPrefix = "transport:adapter_test"

func newTestDispatcher() *dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher()
	d.Use(func(_ context.Context, req *dispatcher.Request, res *dispatcher.Response) error {
		res.Headers["X-Resource"] = req.ResourceName
		return nil
	})
	d.Get(func(_ context.Context, req *dispatcher.Request, res *dispatcher.Response) error {
		res.Result = map[string]interface{}{
			"id":        req.ID,
			"auth":      req.Headers["Authorization"],
			"requestId": req.Headers[HeaderRequestID],
			"resource":  req.ResourceName,
		}
		res.Status = 200
		res.End()
		return nil
	})
	d.Delete(func(_ context.Context, _ *dispatcher.Request, _ *dispatcher.Response) error {
		return errors.New("delete refused")
	})
	return d
}

func TestHandle_Success(t *testing.T) {
	a := NewAdapter(newTestDispatcher(), time.Second)

	resp := a.Handle(context.Background(), &DispatchRequest{
		ID:         "req-1",
		Operation:  "get",
		Resource:   "widgets",
		ResourceID: "w-1",
		Headers:    map[string]string{"Authorization": "token"},
	})

	if !resp.Ok {
		t.Fatalf("%s - expected Ok=true, got error %+v", adapterTestPrefix, resp.Error)
	}
	if resp.ID != "req-1" {
		t.Errorf("%s - ID = %q, want req-1", adapterTestPrefix, resp.ID)
	}
	if resp.Status != 200 {
		t.Errorf("%s - Status = %v, want 200", adapterTestPrefix, resp.Status)
	}
	if resp.Headers["X-Resource"] != "widgets" {
		t.Errorf("%s - Headers = %v", adapterTestPrefix, resp.Headers)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("%s - Result type = %T", adapterTestPrefix, resp.Result)
	}
	if result["id"] != "w-1" || result["auth"] != "token" {
		t.Errorf("%s - Result = %v", adapterTestPrefix, result)
	}
	if result["requestId"] != "req-1" {
		t.Errorf("%s - %s header = %v, want the envelope id", adapterTestPrefix, HeaderRequestID, result["requestId"])
	}
}

func TestHandle_KeepsCallerRequestID(t *testing.T) {
	a := NewAdapter(newTestDispatcher(), time.Second)
	resp := a.Handle(context.Background(), &DispatchRequest{
		ID:        "req-2",
		Operation: "get",
		Resource:  "widgets",
		Headers:   map[string]string{HeaderRequestID: "upstream"},
	})
	result, _ := resp.Result.(map[string]interface{})
	if result["requestId"] != "upstream" {
		t.Errorf("%s - requestId = %v, want upstream", adapterTestPrefix, result["requestId"])
	}
}

func TestHandle_GeneratesID(t *testing.T) {
	a := NewAdapter(newTestDispatcher(), time.Second)
	resp := a.Handle(context.Background(), &DispatchRequest{Operation: "list", Resource: "widgets"})
	if resp.ID == "" {
		t.Errorf("%s - expected a generated id", adapterTestPrefix)
	}
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name          string
		req           *DispatchRequest
		wantCode      string
		wantRetryable bool
	}{
		{
			name:     "missing operation",
			req:      &DispatchRequest{ID: "r", Resource: "widgets"},
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "missing resource",
			req:      &DispatchRequest{ID: "r", Operation: "list"},
			wantCode: CodeInvalidRequest,
		},
		{
			name:     "unsupported operation",
			req:      &DispatchRequest{ID: "r", Operation: "publish", Resource: "widgets"},
			wantCode: CodeUnsupportedOperation,
		},
		{
			name:          "handler error",
			req:           &DispatchRequest{ID: "r", Operation: "delete", Resource: "widgets"},
			wantCode:      CodeHandlerError,
			wantRetryable: true,
		},
	}

	a := NewAdapter(newTestDispatcher(), time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := a.Handle(context.Background(), tt.req)
			if resp.Ok {
				t.Fatalf("%s - expected Ok=false", adapterTestPrefix)
			}
			if resp.ID != "r" {
				t.Errorf("%s - ID = %q, want r", adapterTestPrefix, resp.ID)
			}
			if resp.Error == nil {
				t.Fatalf("%s - expected error detail", adapterTestPrefix)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("%s - Code = %q, want %q", adapterTestPrefix, resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Retryable != tt.wantRetryable {
				t.Errorf("%s - Retryable = %v, want %v", adapterTestPrefix, resp.Error.Retryable, tt.wantRetryable)
			}
			if resp.Result != nil {
				t.Errorf("%s - expected no result on failure, got %v", adapterTestPrefix, resp.Result)
			}
		})
	}
}

func TestHandle_ClientTimeoutAbandonsSlowHandler(t *testing.T) {
	d := dispatcher.NewDispatcher()
	release := make(chan struct{})
	defer close(release)
	d.Use(func(_ context.Context, _ *dispatcher.Request, _ *dispatcher.Response) error {
		<-release
		return nil
	})

	a := NewAdapter(d, 5*time.Second)
	start := time.Now()
	resp := a.Handle(context.Background(), &DispatchRequest{
		ID: "slow", Operation: "list", Resource: "widgets", TimeoutMs: 50,
	})
	if time.Since(start) > 2*time.Second {
		t.Errorf("%s - client timeout not honoured", adapterTestPrefix)
	}
	if resp.Ok || resp.Error == nil || resp.Error.Code != CodeTimeout {
		t.Fatalf("%s - expected TIMEOUT, got %+v", adapterTestPrefix, resp)
	}
}

func TestWithDeadline(t *testing.T) {
	tests := []struct {
		name      string
		server    time.Duration
		clientMs  int
		wantLimit time.Duration
		deadline  bool
	}{
		{"server only", time.Second, 0, time.Second, true},
		{"client shorter", time.Second, 100, 100 * time.Millisecond, true},
		{"client longer", 100 * time.Millisecond, 5000, 100 * time.Millisecond, true},
		{"client only", 0, 300, 300 * time.Millisecond, true},
		{"none", 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(nil, tt.server)
			ctx, cancel := a.withDeadline(context.Background(), tt.clientMs)
			defer cancel()
			dl, ok := ctx.Deadline()
			if ok != tt.deadline {
				t.Fatalf("%s - has deadline = %v, want %v", adapterTestPrefix, ok, tt.deadline)
			}
			if !ok {
				return
			}
			if left := time.Until(dl); left > tt.wantLimit || left < tt.wantLimit-time.Second {
				t.Errorf("%s - deadline in %v, want about %v", adapterTestPrefix, left, tt.wantLimit)
			}
		})
	}
}

func TestMergeMsgHeaders(t *testing.T) {
	req := &DispatchRequest{Headers: map[string]string{"Authorization": "envelope"}}
	h := comms.Header{}
	h.Set("Authorization", "message")
	h.Set("Traceparent", "00-abc")
	mergeMsgHeaders(req, h)

	if req.Headers["Authorization"] != "envelope" {
		t.Errorf("%s - envelope header must win, got %q", adapterTestPrefix, req.Headers["Authorization"])
	}
	if req.Headers["Traceparent"] != "00-abc" {
		t.Errorf("%s - Traceparent = %q", adapterTestPrefix, req.Headers["Traceparent"])
	}

	empty := &DispatchRequest{}
	mergeMsgHeaders(empty, nil)
	if empty.Headers != nil {
		t.Errorf("%s - nil headers must stay nil", adapterTestPrefix)
	}
}

func TestDispatchRequest_Unmarshal(t *testing.T) {
	raw := `{
		"id": "req-1",
		"operation": "update",
		"resource": "widgets",
		"resourceId": "w-1",
		"query": {"dryRun": true},
		"body": {"name": "fred"},
		"headers": {"Accept-Version": "^1.0.0"},
		"timeoutMs": 3000
	}`

	var req DispatchRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("%s - failed to unmarshal: %v", adapterTestPrefix, err)
	}
	if req.Operation != "update" || req.Resource != "widgets" || req.ResourceID != "w-1" {
		t.Errorf("%s - unexpected envelope %+v", adapterTestPrefix, req)
	}
	if req.Headers["Accept-Version"] != "^1.0.0" {
		t.Errorf("%s - Headers = %v", adapterTestPrefix, req.Headers)
	}
	if req.TimeoutMs != 3000 {
		t.Errorf("%s - TimeoutMs = %d, want 3000", adapterTestPrefix, req.TimeoutMs)
	}
}
