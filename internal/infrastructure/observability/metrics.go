package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "api_tester"

// Metrics is the process metrics registry. It is built once at startup and
// passed to the proxy engine, GraphQL adapter and WebSocket relay.
type Metrics struct {
	registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheEvictions   *prometheus.CounterVec
	ActiveRequests   prometheus.Gauge
	RequestDuration  prometheus.Histogram
	ProxyErrorsTotal *prometheus.CounterVec
	WSMessagesTotal  *prometheus.CounterVec
	WSSessionsTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of upstream HTTP requests made",
		}, []string{"method", "status"}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache lookups that found nothing",
		}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total evicted cache entries by reason",
		}, []string{"reason"}),
		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of requests currently being processed",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ProxyErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_errors_total",
			Help:      "Total proxy errors by stage",
		}, []string{"stage"}),
		WSMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Total relayed WebSocket messages by direction",
		}, []string{"direction"}),
		WSSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_sessions_total",
			Help:      "Total WebSocket relay sessions by outcome",
		}, []string{"outcome"}),
	}
	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information",
	}, []string{"version", "commit"})
	buildInfo.WithLabelValues(Version, Commit).Set(1)

	r.MustRegister(m.RequestsTotal, m.CacheHitsTotal, m.CacheMissesTotal, m.CacheEvictions,
		m.ActiveRequests, m.RequestDuration, m.ProxyErrorsTotal, m.WSMessagesTotal, m.WSSessionsTotal, buildInfo)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RegisterCacheSize exposes the current number of cache entries, read at scrape time.
func (m *Metrics) RegisterCacheSize(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Current number of entries in the response cache",
	}, func() float64 { return float64(size()) }))
}

// The methods below satisfy usecase.MetricsHooks.

func (m *Metrics) RequestStarted() { m.ActiveRequests.Inc() }
func (m *Metrics) RequestFinished() { m.ActiveRequests.Dec() }
func (m *Metrics) CacheHit() { m.CacheHitsTotal.Inc() }
func (m *Metrics) CacheMiss() { m.CacheMissesTotal.Inc() }

func (m *Metrics) CacheEvicted(reason string) { m.CacheEvictions.WithLabelValues(reason).Inc() }

func (m *Metrics) UpstreamResponded(method string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ProxyError(stage string) { m.ProxyErrorsTotal.WithLabelValues(stage).Inc() }

func (m *Metrics) WSMessage(direction string) { m.WSMessagesTotal.WithLabelValues(direction).Inc() }

func (m *Metrics) WSSession(outcome string) { m.WSSessionsTotal.WithLabelValues(outcome).Inc() }
