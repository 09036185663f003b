package httpapi

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"api-tester/internal/infrastructure/config"
)

// NewHTTPClient returns the outbound client shared by the proxy engine and the
// GraphQL adapter. It has no client-level timeout: each call carries its own
// context deadline.
func NewHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Transport: newTransport(cfg)}
}

// newTransport centralizes http.Transport creation with TLS options/timeouts.
func newTransport(cfg config.Config) *http.Transport {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	// HTTP/2 for outbound HTTPS where the upstream offers it; on error we stay on HTTP/1.1
	_ = http2.ConfigureTransport(tr)
	return tr
}
