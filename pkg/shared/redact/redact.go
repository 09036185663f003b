package redact

import (
	"encoding/json"
	"strings"
)

const mask = "***"

var sensitiveKeys = []string{"authorization", "cookie", "set-cookie", "access_token", "id_token", "refresh_token", "session", "apikey", "password"}

// RedactJSON masks sensitive fields in a JSON document best-effort.
// Non-JSON input is returned unchanged.
func RedactJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	redactNode(&v)
	b, err := json.Marshal(v)
	if err != nil {
		return s
	}
	return string(b)
}

// Headers returns a copy of h with credential-bearing values masked, for logging.
func Headers(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if isSensitiveHeader(k) {
			out[k] = mask
			continue
		}
		out[k] = v
	}
	return out
}

func redactNode(n *any) {
	switch t := (*n).(type) {
	case map[string]any:
		for k, v := range t {
			if isSensitiveKey(k) {
				t[k] = mask
				continue
			}
			vv := any(v)
			redactNode(&vv)
			t[k] = vv
		}
	case []any:
		for i := range t {
			vv := any(t[i])
			redactNode(&vv)
			t[i] = vv
		}
	}
}

func isSensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if k == s {
			return true
		}
	}
	return false
}

func isSensitiveHeader(k string) bool {
	lk := strings.ToLower(k)
	if isSensitiveKey(lk) {
		return true
	}
	return strings.Contains(lk, "token") || strings.Contains(lk, "secret") || strings.Contains(lk, "api-key")
}
