package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"api-tester/internal/infrastructure/config"
	obs "api-tester/internal/infrastructure/observability"
	"api-tester/internal/usecase"
	"api-tester/pkg/shared/id"
)

type Deps struct {
	Cfg     config.Config
	Logger  *zerolog.Logger
	Metrics *obs.Metrics
	Engine  *usecase.ProxyEngine
	GraphQL *usecase.GraphQLAdapter
	Relay   *usecase.WebSocketRelay
	Monitor *MonitorHub
}

const requestIDHeader = "X-Request-Id"

type ctxKey int

const requestIDKey ctxKey = iota

func NewRouter(d *Deps) http.Handler {
	if d.Monitor == nil {
		d.Monitor = NewMonitorHub()
	}
	return withRequestID(d.Logger, withCORS(d.Cfg, buildBaseMux(d)))
}

// buildBaseMux constructs the mux with all routes, without wrappers.
func buildBaseMux(d *Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    obs.Name,
			"version": obs.Version,
			"commit":  obs.Commit,
			"time":    time.Now().UTC(),
		})
	})

	mux.HandleFunc("/api/monitor/ws", d.Monitor.HandleWS)

	mux.HandleFunc("/proxy", d.handleProxy)
	mux.HandleFunc("/ws", d.handleWebSocket)
	mux.HandleFunc("/graphql", d.handleGraphQL)

	return mux
}

const (
	defaultCORSHeaders = "Content-Type, Authorization, X-Request-Id"
	corsMaxAge         = "3600"
)

func withCORS(cfg config.Config, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		if r.Method == http.MethodOptions {
			// any header the browser asks for is allowed
			allow := r.Header.Get("Access-Control-Request-Headers")
			if allow == "" {
				allow = defaultCORSHeaders
			}
			w.Header().Add("Vary", "Access-Control-Request-Headers")
			w.Header().Set("Access-Control-Allow-Headers", allow)
			w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// withRequestID tags every exchange with an id, reusing the caller's when it is a valid uuid.
func withRequestID(logger *zerolog.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if !id.Valid(rid) {
			rid = id.New()
		}
		w.Header().Set(requestIDHeader, rid)
		start := time.Now()
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, rid)))
		logger.Debug().Str("request_id", rid).Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("http exchange")
	})
}

func requestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}
