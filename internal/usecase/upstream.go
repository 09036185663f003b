package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"api-tester/internal/domain"
)

var errBodyTooLarge = errors.New("response body exceeds size limit")

// upstreamResult is what came back from one outbound HTTP call.
type upstreamResult struct {
	status  int
	header  http.Header
	body    []byte
	readErr error
}

// roundTrip performs req and reads at most maxBody bytes of the response.
// A transport failure is returned as err; a failure while reading the body is
// reported in readErr so callers can still use status and headers.
func roundTrip(ctx context.Context, client HTTPDoer, req *http.Request, maxBody int64) (upstreamResult, error) {
	resp, err := client.Do(req)
	if err != nil {
		return upstreamResult{}, err
	}
	defer resp.Body.Close()
	res := upstreamResult{status: resp.StatusCode, header: resp.Header}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	switch {
	case err != nil:
		res.readErr = err
	case int64(len(body)) > maxBody:
		res.readErr = errBodyTooLarge
	default:
		res.body = body
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return res, nil
}

// isTimeout reports whether err was caused by the call deadline rather than the network.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// transportError maps an outbound failure onto the Timeout / UpstreamUnreachable kinds.
func transportError(ctx context.Context, err error, prefix string) *domain.Error {
	if isTimeout(ctx, err) {
		return domain.NewError(domain.KindTimeout, "Request timeout", err)
	}
	return domain.NewError(domain.KindUpstreamUnreachable, prefix+": "+err.Error(), err)
}

// parseUpstreamURL accepts absolute http(s) URLs only.
func parseUpstreamURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return nil, fmt.Errorf("relative URL without a base")
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("empty host")
	}
	return u, nil
}

// filterHeaders converts caller headers into wire headers, dropping any name or
// value that cannot be encoded. Keys are applied in sorted order so names that
// canonicalize to the same header resolve deterministically.
func filterHeaders(in map[string]string) (http.Header, []string) {
	out := make(http.Header, len(in))
	var dropped []string
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := in[k]
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			dropped = append(dropped, k)
			continue
		}
		out.Set(k, v)
	}
	return out, dropped
}

// applyHeaders copies filtered headers onto req, honoring a Host override.
func applyHeaders(req *http.Request, h http.Header) {
	for k, vs := range h {
		if k == "Host" {
			if len(vs) > 0 {
				req.Host = vs[len(vs)-1]
			}
			continue
		}
		req.Header[k] = vs
	}
}

// flattenHeaders collapses response headers into lower-case names; for repeated
// headers the last value wins.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) == 0 {
			continue
		}
		out[strings.ToLower(k)] = vs[len(vs)-1]
	}
	return out
}

func elapsedMs(start time.Time) uint64 {
	d := time.Since(start)
	if d < 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}

func timestamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }
