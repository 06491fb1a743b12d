// Package transport exposes a dispatcher over COMMS (NATS) request/reply.
package transport

// DispatchRequest is the JSON envelope for incoming dispatch requests.
type DispatchRequest struct {
	ID         string                 `json:"id"`
	Operation  string                 `json:"operation"`
	Resource   string                 `json:"resource"`
	ResourceID interface{}            `json:"resourceId,omitempty"`
	Query      map[string]interface{} `json:"query,omitempty"`
	Body       interface{}            `json:"body,omitempty"`
	Headers    map[string]string      `json:"headers,omitempty"`
	Cookies    map[string]string      `json:"cookies,omitempty"`
	// TimeoutMs lowers the server's request timeout for this call.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// DispatchResponse is the JSON envelope for dispatch responses.
type DispatchResponse struct {
	ID      string            `json:"id"`
	Ok      bool              `json:"ok"`
	Result  interface{}       `json:"result,omitempty"`
	Status  interface{}       `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Error   *ErrorDetail      `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error codes.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeHandlerError         = "HANDLER_ERROR"
	CodeTimeout              = "TIMEOUT"
)
