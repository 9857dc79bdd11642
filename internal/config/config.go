package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string

	BrapiToken   string
	BrapiBaseURL string

	HTTPPort string

	SweepIntervalSecs      int
	SymbolFetchTimeoutSecs int
	QuoteCacheTTLSecs      int

	NotificationRetentionDays  int
	TriggeredRuleRetentionDays int

	QuoteStreamEnabled bool
	QuoteStreamURL     string
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		BrapiToken:       os.Getenv("BRAPI_TOKEN"),
		BrapiBaseURL:     strings.TrimSpace(os.Getenv("BRAPI_BASE_URL")),
		QuoteStreamURL:   strings.TrimSpace(os.Getenv("QUOTE_STREAM_URL")),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.HTTPPort = strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}

	cfg.SweepIntervalSecs = intEnv("SWEEP_INTERVAL_SECS", 120)
	cfg.SymbolFetchTimeoutSecs = intEnv("SYMBOL_FETCH_TIMEOUT_SECS", 10)
	cfg.QuoteCacheTTLSecs = intEnv("QUOTE_CACHE_TTL_SECS", 30)
	cfg.NotificationRetentionDays = intEnv("NOTIFICATION_RETENTION_DAYS", 30)
	cfg.TriggeredRuleRetentionDays = intEnv("TRIGGERED_RULE_RETENTION_DAYS", 30)

	cfg.QuoteStreamEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("QUOTE_STREAM_ENABLED")), "true")
	if cfg.QuoteStreamEnabled && cfg.QuoteStreamURL == "" {
		log.Println("Warning: QUOTE_STREAM_ENABLED set without QUOTE_STREAM_URL, disabling stream")
		cfg.QuoteStreamEnabled = false
	}

	return cfg
}

func intEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, defaulting to %d", key, v, fallback)
		return fallback
	}
	return n
}
