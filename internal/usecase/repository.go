package usecase

import (
	"net/http"
	"time"

	"api-tester/internal/domain"
)

// ResponseCache stores upstream responses by request fingerprint.
// Implementations must be safe for concurrent use without external locking.
type ResponseCache interface {
	Get(key string) (domain.ProxyResponse, bool)
	Insert(key string, value domain.ProxyResponse)
}

// HTTPDoer is the shared outbound transport. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MetricsHooks receives the observability events emitted by the engine, GraphQL adapter and relay.
type MetricsHooks interface {
	RequestStarted()
	RequestFinished()
	CacheHit()
	CacheMiss()
	UpstreamResponded(method string, status int, elapsed time.Duration)
	ProxyError(stage string)
	WSMessage(direction string)
	WSSession(outcome string)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RequestStarted() {}
func (NopMetrics) RequestFinished() {}
func (NopMetrics) CacheHit() {}
func (NopMetrics) CacheMiss() {}
func (NopMetrics) UpstreamResponded(string, int, time.Duration) {}
func (NopMetrics) ProxyError(string) {}
func (NopMetrics) WSMessage(string) {}
func (NopMetrics) WSSession(string) {}
