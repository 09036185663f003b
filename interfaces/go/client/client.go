// Package client is a small Go client for the api-tester HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"api-tester/internal/domain"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient}
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status    int
	Code      string `json:"code"`
	Message   string `json:"error"`
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api-tester: %d %s: %s", e.Status, e.Code, e.Message)
}

// WebSocketRequest is the body of POST /ws. Duration is in seconds; nil uses the server default.
type WebSocketRequest struct {
	URL      string            `json:"url"`
	Messages []string          `json:"messages"`
	Duration *uint64           `json:"duration,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

func (c *Client) Proxy(ctx context.Context, req domain.ProxyRequest) (domain.ProxyResponse, error) {
	var out domain.ProxyResponse
	err := c.post(ctx, "/proxy", req, &out)
	return out, err
}

func (c *Client) GraphQL(ctx context.Context, req domain.GraphQLRequest) (domain.GraphQLResponse, error) {
	var out domain.GraphQLResponse
	err := c.post(ctx, "/graphql", req, &out)
	return out, err
}

func (c *Client) WebSocket(ctx context.Context, req WebSocketRequest) (domain.WebSocketResult, error) {
	var out domain.WebSocketResult
	err := c.post(ctx, "/ws", req, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-Id")}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
