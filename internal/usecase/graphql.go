package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"api-tester/internal/domain"
)

// GraphQLAdapter posts a query document to a GraphQL endpoint. Responses are never cached.
type GraphQLAdapter struct {
	client  HTTPDoer
	metrics MetricsHooks
	logger  *zerolog.Logger
	opts    ProxyOptions
}

func NewGraphQLAdapter(client HTTPDoer, metrics MetricsHooks, logger *zerolog.Logger, opts ProxyOptions) *GraphQLAdapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 10 << 20
	}
	return &GraphQLAdapter{client: client, metrics: metrics, logger: logger, opts: opts}
}

type graphQLPayload struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

// Execute sends req as a POST and returns the upstream data and errors members verbatim.
// Unlike the proxy path, a response that is not JSON is reported as a DecodeFailure.
func (g *GraphQLAdapter) Execute(ctx context.Context, req domain.GraphQLRequest) (domain.GraphQLResponse, error) {
	start := time.Now()
	g.metrics.RequestStarted()
	defer g.metrics.RequestFinished()

	log := g.logger.With().Str("url", req.URL).Logger()
	target, err := parseUpstreamURL(req.URL)
	if err != nil {
		g.metrics.ProxyError("validate")
		return domain.GraphQLResponse{}, domain.NewError(domain.KindInvalidURL, "Invalid URL: "+err.Error(), err)
	}
	payload, err := json.Marshal(graphQLPayload{Query: req.Query, Variables: req.Variables})
	if err != nil {
		return domain.GraphQLResponse{}, domain.NewError(domain.KindBadRequest, "invalid variables: "+err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return domain.GraphQLResponse{}, domain.NewError(domain.KindInvalidURL, "Invalid URL: "+err.Error(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	hdr, dropped := filterHeaders(req.Headers)
	if len(dropped) > 0 {
		log.Debug().Strs("dropped", dropped).Msg("dropped headers that cannot be sent")
	}
	applyHeaders(httpReq, hdr)

	res, err := roundTrip(ctx, g.client, httpReq, g.opts.MaxResponseBytes)
	if err != nil {
		derr := transportError(ctx, err, "GraphQL request failed")
		g.metrics.ProxyError("graphql_upstream")
		log.Error().Err(err).Msg("graphql request failed")
		return domain.GraphQLResponse{}, derr
	}
	g.metrics.UpstreamResponded(http.MethodPost, res.status, time.Since(start))
	if res.readErr != nil {
		if isTimeout(ctx, res.readErr) {
			return domain.GraphQLResponse{}, domain.NewError(domain.KindTimeout, "Request timeout", res.readErr)
		}
		g.metrics.ProxyError("graphql_decode")
		return domain.GraphQLResponse{}, domain.NewError(domain.KindDecodeFailure, "Failed to parse GraphQL response: "+res.readErr.Error(), res.readErr)
	}

	env, err := decodeGraphQL(res.body)
	if err != nil {
		g.metrics.ProxyError("graphql_decode")
		log.Error().Err(err).Int("status", res.status).Msg("failed to parse graphql response")
		return domain.GraphQLResponse{}, domain.NewError(domain.KindDecodeFailure, "Failed to parse GraphQL response: "+err.Error(), err)
	}
	out := domain.GraphQLResponse{Data: env.Data, Errors: env.Errors, DurationMs: elapsedMs(start)}
	log.Info().Int("status", res.status).Bool("has_errors", len(env.Errors) > 0 && string(env.Errors) != "null").Uint64("duration_ms", out.DurationMs).Msg("graphql request completed")
	return out, nil
}

// decodeGraphQL requires a JSON document; members are only extracted from an object.
func decodeGraphQL(body []byte) (graphQLEnvelope, error) {
	if !utf8.Valid(body) {
		return graphQLEnvelope{}, errInvalidUTF8
	}
	var doc json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return graphQLEnvelope{}, err
	}
	var env graphQLEnvelope
	doc = bytes.TrimSpace(doc)
	if len(doc) > 0 && doc[0] == '{' {
		if err := json.Unmarshal(doc, &env); err != nil {
			return graphQLEnvelope{}, err
		}
	}
	return env, nil
}
