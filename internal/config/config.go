// Package config loads application configuration from environment variables.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "FISCALKEEPER_"

// minPassphraseLength is the shortest non-hex encryption key accepted.
const minPassphraseLength = 32

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// SecretKey is the 32-byte credential encryption key. Nil means no key is
	// configured and an ephemeral one will be generated.
	SecretKey []byte

	GatewayURL   string
	GatewayToken string
	GatewayRPS   float64

	MonitorHour         int
	RetryInterval       time.Duration
	InvoicePollInterval time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

// HasKafka reports whether notifications should be published to Kafka.
func (c *Config) HasKafka() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// FISCALKEEPER_GATEWAY_URL is required. Optional variables with defaults:
// FISCALKEEPER_LISTEN_ADDR (127.0.0.1:8080), FISCALKEEPER_DB_PATH (fiscalkeeper.db),
// FISCALKEEPER_GATEWAY_RPS (5), FISCALKEEPER_MONITOR_HOUR (9),
// FISCALKEEPER_RETRY_INTERVAL (15m), FISCALKEEPER_INVOICE_POLL_INTERVAL (5m),
// FISCALKEEPER_KAFKA_TOPIC (fiscal.notifications), FISCALKEEPER_LOG_LEVEL (info).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:          lookup("LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:              lookup("DB_PATH", "fiscalkeeper.db"),
		GatewayToken:        os.Getenv(envPrefix + "GATEWAY_TOKEN"),
		KafkaTopic:          lookup("KAFKA_TOPIC", "fiscal.notifications"),
		KafkaBrokers:        splitList(os.Getenv(envPrefix + "KAFKA_BROKERS")),
		GatewayRPS:          5,
		MonitorHour:         9,
		RetryInterval:       15 * time.Minute,
		InvoicePollInterval: 5 * time.Minute,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(lookup("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%sLOG_LEVEL: %w", envPrefix, err)
	}

	gatewayURL := os.Getenv(envPrefix + "GATEWAY_URL")
	if gatewayURL == "" {
		return nil, fmt.Errorf("%sGATEWAY_URL is required", envPrefix)
	}
	if u, err := url.Parse(gatewayURL); err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%sGATEWAY_URL must be an absolute URL, got %q", envPrefix, gatewayURL)
	}
	cfg.GatewayURL = strings.TrimRight(gatewayURL, "/")

	if v, ok := os.LookupEnv(envPrefix + "GATEWAY_RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("%sGATEWAY_RPS must be a positive number, got %q", envPrefix, v)
		}
		cfg.GatewayRPS = rps
	}

	if v, ok := os.LookupEnv(envPrefix + "MONITOR_HOUR"); ok {
		hour, err := strconv.Atoi(v)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("%sMONITOR_HOUR must be an hour between 0 and 23, got %q", envPrefix, v)
		}
		cfg.MonitorHour = hour
	}

	var err error
	if cfg.RetryInterval, err = durationEnv("RETRY_INTERVAL", cfg.RetryInterval); err != nil {
		return nil, err
	}
	if cfg.InvoicePollInterval, err = durationEnv("INVOICE_POLL_INTERVAL", cfg.InvoicePollInterval); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv(envPrefix + "ENCRYPTION_KEY"); ok && v != "" {
		key, err := parseKey(v)
		if err != nil {
			return nil, fmt.Errorf("%sENCRYPTION_KEY: %w", envPrefix, err)
		}
		cfg.SecretKey = key
	}

	return cfg, nil
}

// parseKey accepts 64 hex characters as a raw key; any other value of at
// least 32 characters is treated as a passphrase and hashed to 32 bytes.
func parseKey(v string) ([]byte, error) {
	if len(v) == 64 {
		if key, err := hex.DecodeString(v); err == nil {
			return key, nil
		}
	}
	if len(v) < minPassphraseLength {
		return nil, fmt.Errorf("must be 64 hex characters or a passphrase of at least %d characters", minPassphraseLength)
	}
	sum := sha256.Sum256([]byte(v))
	return sum[:], nil
}

func lookup(name, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid duration %q: %w", envPrefix, name, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s%s must be positive, got %s", envPrefix, name, d)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
