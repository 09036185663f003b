package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"api-tester/internal/domain"
	"api-tester/pkg/shared/id"
)

// wsRequest is the body of POST /ws. Duration is in whole seconds.
type wsRequest struct {
	URL      string            `json:"url"`
	Messages []string          `json:"messages"`
	Duration *uint64           `json:"duration,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// decodeBody reads a JSON request body bounded by the configured limit.
func (d *Deps) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	body := http.MaxBytesReader(w, r.Body, d.Cfg.MaxRequestBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, string(domain.KindBadRequest), "empty request body")
		default:
			writeError(w, http.StatusBadRequest, string(domain.KindBadRequest), "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}

func (d *Deps) handleProxy(w http.ResponseWriter, r *http.Request) {
	var req domain.ProxyRequest
	if !d.decodeBody(w, r, &req) {
		return
	}
	rid := requestID(r.Context())
	res, err := d.Engine.Execute(r.Context(), req)
	if err != nil {
		d.Logger.Warn().Str("request_id", rid).Str("url", req.URL).Err(err).Msg("proxy request rejected")
		d.Monitor.Broadcast(MonitorEvent{Type: "proxy_failed", ID: rid, Ref: req.URL, Error: err.Error()})
		writeDomainError(w, err)
		return
	}
	d.Monitor.Broadcast(MonitorEvent{Type: "proxy_completed", ID: rid, Ref: req.URL})
	writeJSON(w, http.StatusOK, res)
}

func (d *Deps) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req domain.GraphQLRequest
	if !d.decodeBody(w, r, &req) {
		return
	}
	rid := requestID(r.Context())
	res, err := d.GraphQL.Execute(r.Context(), req)
	if err != nil {
		d.Logger.Warn().Str("request_id", rid).Str("url", req.URL).Err(err).Msg("graphql request rejected")
		d.Monitor.Broadcast(MonitorEvent{Type: "graphql_failed", ID: rid, Ref: req.URL, Error: err.Error()})
		writeDomainError(w, err)
		return
	}
	d.Monitor.Broadcast(MonitorEvent{Type: "graphql_completed", ID: rid, Ref: req.URL})
	writeJSON(w, http.StatusOK, res)
}

func (d *Deps) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var req wsRequest
	if !d.decodeBody(w, r, &req) {
		return
	}
	rid := requestID(r.Context())
	if rid == "" {
		rid = id.New()
	}
	sess := domain.WebSocketSession{
		ID:       rid,
		URL:      req.URL,
		Messages: req.Messages,
		Headers:  req.Headers,
	}
	if req.Duration != nil {
		listen := secondsToDuration(*req.Duration)
		sess.Listen = &listen
	}
	// a relay session can outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	res, err := d.Relay.Run(r.Context(), sess)
	if err != nil {
		d.Logger.Warn().Str("request_id", rid).Str("url", req.URL).Err(err).Msg("websocket relay rejected")
		d.Monitor.Broadcast(MonitorEvent{Type: "ws_failed", ID: rid, Ref: req.URL, Error: err.Error()})
		writeDomainError(w, err)
		return
	}
	d.Monitor.Broadcast(MonitorEvent{Type: "ws_completed", ID: rid, Ref: req.URL})
	writeJSON(w, http.StatusOK, res)
}

func secondsToDuration(s uint64) time.Duration {
	const maxSeconds = uint64(math.MaxInt64 / int64(time.Second))
	if s > maxSeconds {
		s = maxSeconds
	}
	return time.Duration(s) * time.Second
}
