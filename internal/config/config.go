package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Upstream data.go.kr TyphoonInfoService.
	ServiceKey      string
	UpstreamBaseURL string
	UpstreamTimeout time.Duration // per fetch attempt

	// Fetch coordination.
	FetchMaxRetries     uint64 // retries after the first attempt
	FetchInitialBackoff time.Duration
	LiveTTL             time.Duration
	HistoricalTTL       time.Duration
	CacheMaxEntries     int

	// Impact window tuning.
	WindowSamples     int
	WindowEpsilon     time.Duration
	CoarseBulletinGap time.Duration

	// Optional Kafka impact alerts (enabled when brokers are set).
	KafkaBrokers    []string
	KafkaAlertTopic string
	AlertsEnabled   bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; real env wins over file values

	cfg := &Config{
		ServiceKey:      os.Getenv("DATA_GO_KR_SERVICE_KEY"),
		UpstreamBaseURL: envOrDefault("DATA_GO_KR_BASE_URL", "https://apis.data.go.kr/1360000/TyphoonInfoService"),
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "typhoon-impact-alerts"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
		cfg.AlertsEnabled = true
	}
	if v := os.Getenv("ALERTS_ENABLED"); v != "" {
		cfg.AlertsEnabled = v == "true"
	}

	var err error
	if cfg.UpstreamTimeout, err = durationEnv("UPSTREAM_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchInitialBackoff, err = durationEnv("FETCH_INITIAL_BACKOFF", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.LiveTTL, err = durationEnv("LIVE_CACHE_TTL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HistoricalTTL, err = durationEnv("HISTORICAL_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.WindowEpsilon, err = durationEnv("WINDOW_EPSILON", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CoarseBulletinGap, err = durationEnv("COARSE_BULLETIN_GAP", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	retries, err := intEnv("FETCH_MAX_RETRIES", 3)
	if err != nil || retries < 0 {
		return nil, errors.New("invalid FETCH_MAX_RETRIES")
	}
	cfg.FetchMaxRetries = uint64(retries)

	if cfg.CacheMaxEntries, err = intEnv("CACHE_MAX_ENTRIES", 256); err != nil || cfg.CacheMaxEntries <= 0 {
		return nil, errors.New("invalid CACHE_MAX_ENTRIES")
	}
	if cfg.WindowSamples, err = intEnv("WINDOW_SAMPLES", 64); err != nil || cfg.WindowSamples <= 0 {
		return nil, errors.New("invalid WINDOW_SAMPLES")
	}

	if cfg.ServiceKey == "" {
		return nil, errors.New("DATA_GO_KR_SERVICE_KEY is required")
	}
	if cfg.AlertsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ALERTS_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
