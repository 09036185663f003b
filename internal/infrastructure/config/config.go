package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string
	LogLevel        string
	CORSAllowOrigin string
	InsecureTLS     bool
	// Accept PROXY protocol v1/v2 headers from a fronting load balancer.
	ProxyProtocol bool

	// Upstream HTTP/GraphQL calls
	RequestTimeout   time.Duration
	MaxRequestBytes  int64 // caller JSON payload limit
	MaxResponseBytes int64 // upstream body limit; larger bodies decode as null

	// Response cache
	CacheCapacity        int
	CacheTTL             time.Duration
	CacheJanitorSchedule string // cron expression, empty disables the janitor

	// WebSocket relay
	WSHandshakeTimeout time.Duration
	WSSendInterval     time.Duration
	WSDefaultListen    time.Duration
	WSMaxListen        time.Duration
}

func Defaults() Config {
	return Config{
		Addr:                 "127.0.0.1:8000",
		LogLevel:             "info",
		CORSAllowOrigin:      "*",
		RequestTimeout:       30 * time.Second,
		MaxRequestBytes:      1 << 20,
		MaxResponseBytes:     10 << 20,
		CacheCapacity:        1000,
		CacheTTL:             300 * time.Second,
		CacheJanitorSchedule: "@every 1m",
		WSHandshakeTimeout:   10 * time.Second,
		WSSendInterval:       100 * time.Millisecond,
		WSDefaultListen:      5 * time.Second,
		WSMaxListen:          60 * time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment variables, and validates the result.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.CacheCapacity > 0 && c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	}
	if c.WSHandshakeTimeout <= 0 {
		return fmt.Errorf("ws handshake timeout must be positive, got %s", c.WSHandshakeTimeout)
	}
	if c.WSMaxListen <= 0 {
		return fmt.Errorf("ws max listen must be positive, got %s", c.WSMaxListen)
	}
	if c.WSDefaultListen < 0 || c.WSSendInterval < 0 {
		return fmt.Errorf("ws durations must not be negative")
	}
	if c.MaxRequestBytes <= 0 || c.MaxResponseBytes <= 0 {
		return fmt.Errorf("body size limits must be positive")
	}
	return nil
}

type fileConfig struct {
	Addr             string `yaml:"addr"`
	LogLevel         string `yaml:"log_level"`
	CORSAllowOrigin  string `yaml:"cors_allow_origin"`
	InsecureTLS      *bool  `yaml:"insecure_tls"`
	ProxyProtocol    *bool  `yaml:"proxy_protocol"`
	RequestTimeout   string `yaml:"request_timeout"`
	MaxRequestBytes  string `yaml:"max_request_bytes"`
	MaxResponseBytes string `yaml:"max_response_bytes"`
	Cache            struct {
		Capacity        *int    `yaml:"capacity"`
		TTL             string  `yaml:"ttl"`
		JanitorSchedule *string `yaml:"janitor_schedule"`
	} `yaml:"cache"`
	WS struct {
		HandshakeTimeout string `yaml:"handshake_timeout"`
		SendInterval     string `yaml:"send_interval"`
		DefaultListen    string `yaml:"default_listen"`
		MaxListen        string `yaml:"max_listen"`
	} `yaml:"ws"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.CORSAllowOrigin != "" {
		cfg.CORSAllowOrigin = fc.CORSAllowOrigin
	}
	if fc.InsecureTLS != nil {
		cfg.InsecureTLS = *fc.InsecureTLS
	}
	if fc.ProxyProtocol != nil {
		cfg.ProxyProtocol = *fc.ProxyProtocol
	}
	if fc.Cache.Capacity != nil {
		cfg.CacheCapacity = *fc.Cache.Capacity
	}
	if fc.Cache.JanitorSchedule != nil {
		cfg.CacheJanitorSchedule = strings.TrimSpace(*fc.Cache.JanitorSchedule)
	}
	durations := []struct {
		key  string
		raw  string
		unit time.Duration
		dst  *time.Duration
	}{
		{"request_timeout", fc.RequestTimeout, time.Second, &cfg.RequestTimeout},
		{"cache.ttl", fc.Cache.TTL, time.Second, &cfg.CacheTTL},
		{"ws.handshake_timeout", fc.WS.HandshakeTimeout, time.Second, &cfg.WSHandshakeTimeout},
		{"ws.send_interval", fc.WS.SendInterval, time.Millisecond, &cfg.WSSendInterval},
		{"ws.default_listen", fc.WS.DefaultListen, time.Second, &cfg.WSDefaultListen},
		{"ws.max_listen", fc.WS.MaxListen, time.Second, &cfg.WSMaxListen},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := parseDuration(d.raw, d.unit)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	sizes := []struct {
		key string
		raw string
		dst *int64
	}{
		{"max_request_bytes", fc.MaxRequestBytes, &cfg.MaxRequestBytes},
		{"max_response_bytes", fc.MaxResponseBytes, &cfg.MaxResponseBytes},
	}
	for _, s := range sizes {
		if s.raw == "" {
			continue
		}
		v, err := parseBytes(s.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = v
	}
	return nil
}

// applyEnv overrides cfg from the environment. Malformed values keep the current value.
func applyEnv(cfg *Config) {
	cfg.Addr = getEnv("ADDR", cfg.Addr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.CORSAllowOrigin = getEnv("CORS_ALLOW_ORIGIN", cfg.CORSAllowOrigin)
	cfg.InsecureTLS = getEnvBool("INSECURE_TLS", cfg.InsecureTLS)
	cfg.ProxyProtocol = getEnvBool("PROXY_PROTOCOL", cfg.ProxyProtocol)

	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", time.Second, cfg.RequestTimeout)
	cfg.MaxRequestBytes = getEnvBytes("MAX_REQUEST_BYTES", cfg.MaxRequestBytes)
	cfg.MaxResponseBytes = getEnvBytes("MAX_RESPONSE_BYTES", cfg.MaxResponseBytes)

	cfg.CacheCapacity = getEnvInt("CACHE_CAPACITY", cfg.CacheCapacity)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", time.Second, cfg.CacheTTL)
	if v, ok := os.LookupEnv("CACHE_JANITOR_SCHEDULE"); ok {
		cfg.CacheJanitorSchedule = strings.TrimSpace(v)
	}

	cfg.WSHandshakeTimeout = getEnvDuration("WS_HANDSHAKE_TIMEOUT", time.Second, cfg.WSHandshakeTimeout)
	cfg.WSSendInterval = getEnvDuration("WS_SEND_INTERVAL", time.Millisecond, cfg.WSSendInterval)
	cfg.WSDefaultListen = getEnvDuration("WS_DEFAULT_LISTEN", time.Second, cfg.WSDefaultListen)
	cfg.WSMaxListen = getEnvDuration("WS_MAX_LISTEN", time.Second, cfg.WSMaxListen)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

func getEnvDuration(key string, unit time.Duration, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := parseDuration(v, unit); err == nil {
			return d
		}
	}
	return def
}

func getEnvBytes(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := parseBytes(v); err == nil {
			return n
		}
	}
	return def
}

// parseDuration accepts Go duration strings ("1m30s") or a bare integer counted in unit.
func parseDuration(raw string, unit time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

// parseBytes accepts sizes like "10MB", "512KiB" or a plain byte count.
func parseBytes(raw string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	if n > uint64(1<<62) {
		return 0, fmt.Errorf("size %q too large", raw)
	}
	return int64(n), nil
}
