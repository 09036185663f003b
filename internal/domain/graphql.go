package domain

import "encoding/json"

type GraphQLRequest struct {
	URL       string            `json:"url"`
	Query     string            `json:"query"`
	Variables json.RawMessage   `json:"variables,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// GraphQLResponse surfaces the upstream data and errors members verbatim.
// Both are null when the upstream omitted them.
type GraphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors"`
	DurationMs uint64          `json:"duration_ms"`
}
