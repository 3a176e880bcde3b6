package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Quote providers selectable with QUOTE_PROVIDER.
const (
	ProviderSynthetic = "synthetic"
	ProviderHTTP      = "http"
)

// Config holds all runtime configuration for the mock trader.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	CatalogPath string

	QuoteProvider        string
	UpstreamBaseURL      string
	UpstreamSymbolSuffix string
	UpstreamTimeout      time.Duration
	UpstreamConcurrency  int
	SyntheticVolatility  float64

	GatewayURL     string
	GatewayToken   string
	GatewayTimeout time.Duration

	StockPollInterval time.Duration
	IndexPollInterval time.Duration
	StockBatchMax     int
	IndexBatchMax     int
	BatchDelay        time.Duration
	HistoryCapacity   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration

	AlertWebhookURL string
	AlertTimeout    time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for the first invalid value.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:             getStr("LOG_LEVEL", "info"),
		CatalogPath:          os.Getenv("CATALOG_PATH"),
		QuoteProvider:        getStr("QUOTE_PROVIDER", ProviderSynthetic),
		UpstreamBaseURL:      getStr("UPSTREAM_BASE_URL", "https://query1.finance.yahoo.com"),
		UpstreamSymbolSuffix: getStr("UPSTREAM_SYMBOL_SUFFIX", ".NS"),
		GatewayURL:           os.Getenv("GATEWAY_URL"),
		GatewayToken:         os.Getenv("GATEWAY_TOKEN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		AlertWebhookURL:      os.Getenv("ALERT_WEBHOOK_URL"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", cfg.Port)
	}

	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}

	durations := []struct {
		key  string
		dst  *time.Duration
		def  time.Duration
		zero bool // zero allowed
	}{
		{"READ_TIMEOUT", &cfg.ReadTimeout, 5 * time.Second, false},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout, 10 * time.Second, false},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout, 60 * time.Second, false},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 10 * time.Second, false},
		{"UPSTREAM_TIMEOUT", &cfg.UpstreamTimeout, 5 * time.Second, false},
		{"GATEWAY_TIMEOUT", &cfg.GatewayTimeout, 10 * time.Second, false},
		{"STOCK_POLL_INTERVAL", &cfg.StockPollInterval, 2 * time.Second, false},
		{"INDEX_POLL_INTERVAL", &cfg.IndexPollInterval, 5 * time.Second, false},
		{"BATCH_DELAY", &cfg.BatchDelay, 100 * time.Millisecond, true},
		{"SNAPSHOT_TTL", &cfg.SnapshotTTL, time.Minute, false},
		{"ALERT_TIMEOUT", &cfg.AlertTimeout, 5 * time.Second, false},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 || (v == 0 && !d.zero) {
			return nil, fmt.Errorf("invalid %s: %s, must be positive", d.key, v)
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		dst *int
		def int
		min int
	}{
		{"UPSTREAM_CONCURRENCY", &cfg.UpstreamConcurrency, 8, 1},
		{"STOCK_BATCH_MAX", &cfg.StockBatchMax, 50, 1},
		{"INDEX_BATCH_MAX", &cfg.IndexBatchMax, 20, 1},
		{"HISTORY_CAPACITY", &cfg.HistoryCapacity, 30, 1},
		{"REDIS_DB", &cfg.RedisDB, 0, 0},
	}
	for _, n := range ints {
		v, err := getInt(n.key, n.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", n.key, err)
		}
		if v < n.min {
			return nil, fmt.Errorf("invalid %s: %d, must be at least %d", n.key, v, n.min)
		}
		*n.dst = v
	}

	if cfg.SyntheticVolatility, err = getFloat("SYNTHETIC_VOLATILITY", 0.5); err != nil {
		return nil, fmt.Errorf("invalid SYNTHETIC_VOLATILITY: %w", err)
	}
	if cfg.SyntheticVolatility < 0 || cfg.SyntheticVolatility > 100 {
		return nil, fmt.Errorf("invalid SYNTHETIC_VOLATILITY: %g, must be between 0 and 100", cfg.SyntheticVolatility)
	}

	switch cfg.QuoteProvider {
	case ProviderSynthetic:
	case ProviderHTTP:
		if !isAbsoluteURL(cfg.UpstreamBaseURL) {
			return nil, fmt.Errorf("invalid UPSTREAM_BASE_URL: %q, must be an absolute URL", cfg.UpstreamBaseURL)
		}
	default:
		return nil, fmt.Errorf("invalid QUOTE_PROVIDER: %q, must be one of: synthetic, http", cfg.QuoteProvider)
	}

	if cfg.GatewayURL == "" {
		cfg.GatewayURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	}
	if !isAbsoluteURL(cfg.GatewayURL) {
		return nil, fmt.Errorf("invalid GATEWAY_URL: %q, must be an absolute URL", cfg.GatewayURL)
	}
	if cfg.AlertWebhookURL != "" && !isAbsoluteURL(cfg.AlertWebhookURL) {
		return nil, fmt.Errorf("invalid ALERT_WEBHOOK_URL: %q, must be an absolute URL", cfg.AlertWebhookURL)
	}

	return cfg, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isAbsoluteURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}
