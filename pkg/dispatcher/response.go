package dispatcher

import "sync/atomic"

// Response is the mutable result shared by every handler of one dispatch.
type Response struct {
	Result  any               `json:"result"`
	Status  any               `json:"status"`
	Headers map[string]string `json:"headers"`

	ended atomic.Bool
}

// NewResponse returns an empty response.
func NewResponse() *Response {
	return &Response{Headers: map[string]string{}}
}

// End marks the response final. No handler after the current one runs.
func (r *Response) End() {
	r.ended.Store(true)
}

// Ended reports whether End has been called.
func (r *Response) Ended() bool {
	return r.ended.Load()
}
