package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	proxyproto "github.com/pires/go-proxyproto"
	"go.uber.org/multierr"

	"api-tester/internal/adapters/storage/memory"
	cfgpkg "api-tester/internal/infrastructure/config"
	httpapi "api-tester/internal/infrastructure/httpapi"
	obs "api-tester/internal/infrastructure/observability"
	"api-tester/internal/usecase"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := obs.NewLogger(cfg.LogLevel)
	logger.Info().
		Str("addr", cfg.Addr).
		Int("cache_capacity", cfg.CacheCapacity).
		Dur("cache_ttl", cfg.CacheTTL).
		Dur("request_timeout", cfg.RequestTimeout).
		Str("max_response", humanize.Bytes(uint64(cfg.MaxResponseBytes))).
		Msg("starting api-tester")

	metrics := obs.NewMetrics()

	cache := memory.NewResponseCache(cfg.CacheCapacity, cfg.CacheTTL, memory.WithEvictionHook(metrics.CacheEvicted))
	metrics.RegisterCacheSize(cache.Len)
	var janitorStop func() context.Context
	if cfg.CacheJanitorSchedule != "" && cfg.CacheCapacity > 0 && cfg.CacheTTL > 0 {
		janitor, err := memory.StartJanitor(cfg.CacheJanitorSchedule, cache, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("cache janitor")
		}
		janitorStop = janitor.Stop
	}

	client := httpapi.NewHTTPClient(cfg)
	proxyOpts := usecase.ProxyOptions{Timeout: cfg.RequestTimeout, MaxResponseBytes: cfg.MaxResponseBytes}
	deps := &httpapi.Deps{
		Cfg:     cfg,
		Logger:  logger,
		Metrics: metrics,
		Engine:  usecase.NewProxyEngine(cache, client, metrics, logger, proxyOpts),
		GraphQL: usecase.NewGraphQLAdapter(client, metrics, logger, proxyOpts),
		Relay: usecase.NewWebSocketRelay(
			usecase.NewGorillaDialer(cfg.WSHandshakeTimeout, cfg.InsecureTLS),
			metrics, logger,
			usecase.RelayOptions{
				HandshakeTimeout: cfg.WSHandshakeTimeout,
				SendInterval:     cfg.WSSendInterval,
				DefaultListen:    cfg.WSDefaultListen,
				MaxListen:        cfg.WSMaxListen,
			}),
		Monitor: httpapi.NewMonitorHub(),
	}

	srv := &http.Server{
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// leave room for the upstream deadline plus encoding the reply
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Addr).Msg("listen")
	}
	if cfg.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln, ReadHeaderTimeout: 5 * time.Second}
		logger.Info().Msg("accepting PROXY protocol headers")
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	deps.Monitor.Close()
	err = srv.Shutdown(ctx)
	if janitorStop != nil {
		select {
		case <-janitorStop().Done():
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("cache janitor: %w", ctx.Err()))
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("api-tester stopped")
}
