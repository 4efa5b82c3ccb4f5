package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the document assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogFormat        string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	PipelineTimeout      time.Duration
	MaxFileBytes         int64
	MaxMergeBytes        int64
	DefaultLang          string

	WhatsAppBaseURL       string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppMaxRetries    int

	TransformURL         string
	TransformConcurrency int
	TransformTimeout     time.Duration

	DatabaseURL        string
	SQLitePath         string
	ConversionLogLimit int

	RedisURL         string
	DedupeTTL        time.Duration
	DedupeMaxEntries int

	AdminToken string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "docbot"),
		LogLevel:         strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("APP_LOG_FORMAT", "text")),
		ShutdownTimeout:  15 * time.Second,

		SessionTTL:           10 * time.Minute,
		SessionSweepInterval: 30 * time.Second,
		PipelineTimeout:      2 * time.Minute,
		MaxFileBytes:         10 << 20,
		MaxMergeBytes:        50 << 20,
		DefaultLang:          strings.ToLower(envOrDefault("DEFAULT_LANG", "en")),

		WhatsAppBaseURL:       envOrDefault("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v18.0"),
		WhatsAppAccessToken:   stringsTrimSpace("WHATSAPP_ACCESS_TOKEN"),
		WhatsAppPhoneNumberID: stringsTrimSpace("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppVerifyToken:   stringsTrimSpace("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAppSecret:     stringsTrimSpace("WHATSAPP_APP_SECRET"),
		WhatsAppMaxRetries:    3,

		// Empty means the transform service is not configured; pipelines fail
		// with a generic processing error.
		TransformURL:         stringsTrimSpace("TRANSFORM_URL"),
		TransformConcurrency: 4,
		TransformTimeout:     90 * time.Second,

		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		SQLitePath:         stringsTrimSpace("SQLITE_PATH"),
		ConversionLogLimit: 1000,

		RedisURL:         stringsTrimSpace("REDIS_URL"),
		DedupeTTL:        10 * time.Minute,
		DedupeMaxEntries: 10000,

		AdminToken: stringsTrimSpace("ADMIN_TOKEN"),
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"SESSION_SWEEP_INTERVAL", &cfg.SessionSweepInterval},
		{"PIPELINE_TIMEOUT", &cfg.PipelineTimeout},
		{"TRANSFORM_TIMEOUT", &cfg.TransformTimeout},
		{"DEDUPE_TTL", &cfg.DedupeTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WHATSAPP_MAX_RETRIES", &cfg.WhatsAppMaxRetries},
		{"TRANSFORM_CONCURRENCY", &cfg.TransformConcurrency},
		{"CONVERSION_LOG_LIMIT", &cfg.ConversionLogLimit},
		{"DEDUPE_MAX_ENTRIES", &cfg.DedupeMaxEntries},
	}
	for _, n := range ints {
		if *n.dst, err = intFromEnv(n.key, *n.dst); err != nil {
			return Config{}, err
		}
	}

	cfg.MaxFileBytes, err = bytesFromEnv("MAX_FILE_BYTES", cfg.MaxFileBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMergeBytes, err = bytesFromEnv("MAX_MERGE_BYTES", cfg.MaxMergeBytes)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionTTL < 5*time.Second {
		return fmt.Errorf("SESSION_TTL must be at least 5s")
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.PipelineTimeout <= 0 {
		return fmt.Errorf("PIPELINE_TIMEOUT must be positive")
	}
	if c.MaxFileBytes <= 0 {
		return fmt.Errorf("MAX_FILE_BYTES must be positive")
	}
	if c.MaxMergeBytes < c.MaxFileBytes {
		return fmt.Errorf("MAX_MERGE_BYTES must be >= MAX_FILE_BYTES")
	}
	if c.WhatsAppMaxRetries < 0 {
		return fmt.Errorf("WHATSAPP_MAX_RETRIES must be >= 0")
	}
	if c.TransformConcurrency <= 0 {
		return fmt.Errorf("TRANSFORM_CONCURRENCY must be positive")
	}
	if c.ConversionLogLimit <= 0 {
		return fmt.Errorf("CONVERSION_LOG_LIMIT must be positive")
	}
	switch c.DefaultLang {
	case "en", "hi":
	default:
		return fmt.Errorf("DEFAULT_LANG must be en or hi")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("APP_LOG_FORMAT must be text or json")
	}
	return nil
}

// WhatsAppConfigured reports whether outbound chat calls can be made.
func (c Config) WhatsAppConfigured() bool {
	return c.WhatsAppAccessToken != "" && c.WhatsAppPhoneNumberID != ""
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

// bytesFromEnv accepts a plain byte count or a KiB/MiB suffixed value.
func bytesFromEnv(key string, fallback int64) (int64, error) {
	v := strings.ToUpper(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(v, "MIB"), strings.HasSuffix(v, "MB"):
		mult = 1 << 20
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MIB"), "MB")
	case strings.HasSuffix(v, "KIB"), strings.HasSuffix(v, "KB"):
		mult = 1 << 10
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KIB"), "KB")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n * mult, nil
}
