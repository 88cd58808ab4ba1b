package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings read from the environment.
type Config struct {
	Port string

	LogLevel slog.Level

	// HTTPTimeout bounds every outbound upstream call.
	HTTPTimeout time.Duration

	NominatimURL string
	CPTECURL     string
	UserAgent    string

	// DatabaseURL is optional; when set, the region_stations table
	// overrides the built-in station table.
	DatabaseURL string

	// APIToken is optional; when set, forecast routes require bearer auth.
	APIToken string

	// RateLimitPerMinute is the per-IP request limit (0 disables it).
	RateLimitPerMinute int
}

// Load reads configuration from the environment, after loading an optional
// .env file, with sensible defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		NominatimURL: getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		CPTECURL:     getEnv("CPTEC_URL", "http://servicos.cptec.inpe.br/XML"),
		UserAgent:    getEnv("USER_AGENT", "previsao/1.0"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		APIToken:     os.Getenv("API_TOKEN"),
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	timeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: must be positive, got %s", timeout)
	}
	cfg.HTTPTimeout = timeout

	limit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if limit < 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: must not be negative, got %d", limit)
	}
	cfg.RateLimitPerMinute = limit

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
