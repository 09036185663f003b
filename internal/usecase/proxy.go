package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"api-tester/internal/domain"
	"api-tester/pkg/shared/redact"
)

var (
	errEmptyBody   = errors.New("empty response body")
	errInvalidUTF8 = errors.New("response body is not valid UTF-8")
)

type ProxyOptions struct {
	Timeout          time.Duration
	MaxResponseBytes int64
}

// ProxyEngine forwards one HTTP request per call, serving repeated cacheable
// GETs from the response cache.
type ProxyEngine struct {
	cache   ResponseCache
	client  HTTPDoer
	metrics MetricsHooks
	logger  *zerolog.Logger
	opts    ProxyOptions
}

func NewProxyEngine(cache ResponseCache, client HTTPDoer, metrics MetricsHooks, logger *zerolog.Logger, opts ProxyOptions) *ProxyEngine {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 10 << 20
	}
	return &ProxyEngine{cache: cache, client: client, metrics: metrics, logger: logger, opts: opts}
}

// Execute performs req and returns the normalized response.
// Errors are *domain.Error with kind UnsupportedMethod, InvalidURL, Timeout or UpstreamUnreachable.
// A body that is not JSON is not an error: the response carries a null body.
func (e *ProxyEngine) Execute(ctx context.Context, req domain.ProxyRequest) (domain.ProxyResponse, error) {
	start := time.Now()
	e.metrics.RequestStarted()
	defer e.metrics.RequestFinished()

	req.Method = domain.NormalizeMethod(req.Method)
	log := e.logger.With().Str("method", req.Method).Str("url", req.URL).Logger()
	log.Info().Bool("use_cache", req.UseCache).Msg("proxy request received")

	var key string
	if req.Cacheable() {
		key = domain.Fingerprint(req)
		if hit, ok := e.cache.Get(key); ok {
			e.metrics.CacheHit()
			hit.Cached = true
			hit.DurationMs = elapsedMs(start)
			log.Info().Str("fingerprint", key).Msg("cache hit")
			return hit, nil
		}
		e.metrics.CacheMiss()
	}

	if !domain.SupportedMethod(req.Method) {
		e.metrics.ProxyError("validate")
		return domain.ProxyResponse{}, domain.NewError(domain.KindUnsupportedMethod, "Unsupported HTTP method", nil)
	}
	target, err := parseUpstreamURL(req.URL)
	if err != nil {
		e.metrics.ProxyError("validate")
		return domain.ProxyResponse{}, domain.NewError(domain.KindInvalidURL, "Invalid URL: "+err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var body io.Reader
	if req.HasBody() {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		e.metrics.ProxyError("build")
		return domain.ProxyResponse{}, domain.NewError(domain.KindInvalidURL, "Invalid URL: "+err.Error(), err)
	}
	hdr, dropped := filterHeaders(req.Headers)
	if len(dropped) > 0 {
		log.Debug().Strs("dropped", dropped).Msg("dropped headers that cannot be sent")
	}
	applyHeaders(httpReq, hdr)
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if log.GetLevel() <= zerolog.DebugLevel {
		log.Debug().Interface("headers", redact.Headers(req.Headers)).Str("body", redact.RedactJSON(string(req.Body))).Msg("forwarding request")
	}

	res, err := roundTrip(ctx, e.client, httpReq, e.opts.MaxResponseBytes)
	if err != nil {
		derr := transportError(ctx, err, "Request failed")
		if derr.Kind == domain.KindTimeout {
			e.metrics.ProxyError("timeout")
			log.Error().Dur("timeout", e.opts.Timeout).Msg("request timeout")
		} else {
			e.metrics.ProxyError("upstream")
			log.Error().Err(err).Msg("request failed")
		}
		return domain.ProxyResponse{}, derr
	}
	e.metrics.UpstreamResponded(req.Method, res.status, time.Since(start))
	if res.readErr != nil && !errors.Is(res.readErr, errBodyTooLarge) && isTimeout(ctx, res.readErr) {
		e.metrics.ProxyError("timeout")
		log.Error().Dur("timeout", e.opts.Timeout).Msg("request timeout while reading body")
		return domain.ProxyResponse{}, domain.NewError(domain.KindTimeout, "Request timeout", res.readErr)
	}

	out := domain.ProxyResponse{
		Status:  uint16(res.status),
		Headers: flattenHeaders(res.header),
		Cached:  false,
	}
	decoded, decodeErr := decodeBody(res)
	out.Body = decoded
	out.Timestamp = timestamp()
	out.DurationMs = elapsedMs(start)

	if decodeErr != nil {
		e.metrics.ProxyError("decode")
		log.Error().Err(decodeErr).Int("status", res.status).Msg("failed to parse response body")
		return out, nil
	}
	if key != "" && res.status >= 200 && res.status < 300 {
		e.cache.Insert(key, out)
	}
	log.Info().Int("status", res.status).Str("size", humanize.Bytes(uint64(len(res.body)))).Uint64("duration_ms", out.DurationMs).Msg("proxy request completed")
	return out, nil
}

// decodeBody parses the upstream body as JSON. On failure it returns a null body
// together with the decode error.
func decodeBody(res upstreamResult) (json.RawMessage, error) {
	if res.readErr != nil {
		return nil, domain.NewError(domain.KindDecodeFailure, "read body", res.readErr)
	}
	b := bytes.TrimSpace(res.body)
	if len(b) == 0 {
		switch res.status {
		case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
			return nil, nil
		}
		return nil, domain.NewError(domain.KindDecodeFailure, errEmptyBody.Error(), errEmptyBody)
	}
	if !utf8.Valid(b) {
		return nil, domain.NewError(domain.KindDecodeFailure, errInvalidUTF8.Error(), errInvalidUTF8)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, domain.NewError(domain.KindDecodeFailure, fmt.Sprintf("invalid json: %v", err), err)
	}
	return buf.Bytes(), nil
}
