package transport

import (
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier reads trace context from envelope headers. COMMS headers
// arrive canonicalized ("Traceparent") while propagators ask for lower-case
// keys, so lookups ignore case.
type headerCarrier map[string]string

var _ propagation.TextMapCarrier = headerCarrier(nil)

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		return v
	}
	for k, v := range c {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Set is a no-op: responses do not carry trace context.
func (c headerCarrier) Set(string, string) {}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
