package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ProxyRequest describes one outbound HTTP call the caller wants performed.
type ProxyRequest struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
	UseCache bool              `json:"use_cache"`
}

// HasBody reports whether a payload should be sent upstream.
// A missing body and an explicit JSON null are treated the same.
func (r ProxyRequest) HasBody() bool {
	b := bytes.TrimSpace(r.Body)
	return len(b) > 0 && !bytes.Equal(b, []byte("null"))
}

// Cacheable reports whether the request may be served from or stored in the response cache.
func (r ProxyRequest) Cacheable() bool {
	return r.UseCache && r.Method == "GET"
}

// ProxyResponse is the normalized result of a proxied HTTP call.
type ProxyResponse struct {
	Status     uint16            `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       json.RawMessage   `json:"body"`
	Cached     bool              `json:"cached"`
	Timestamp  string            `json:"timestamp"`
	DurationMs uint64            `json:"duration_ms"`
}

var supportedMethods = map[string]struct{}{
	"GET":    {},
	"POST":   {},
	"PUT":    {},
	"DELETE": {},
	"PATCH":  {},
}

// NormalizeMethod upper-cases an HTTP method name.
func NormalizeMethod(m string) string { return strings.ToUpper(strings.TrimSpace(m)) }

// SupportedMethod reports whether m (already normalized) can be proxied.
func SupportedMethod(m string) bool {
	_, ok := supportedMethods[m]
	return ok
}
