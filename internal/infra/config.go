package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv               string
	Port                 string
	DatabaseURL          string
	JWTSecret            string
	GeminiAPIKey         string
	GeminiModel          string
	GeoIPDBPath          string
	InsecureDevAuth      bool
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	RateLimitPerMin      int
	HistoryRetentionDays int
	AllowedOrigins       []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash-lite"),
		GeoIPDBPath:          os.Getenv("GEOIP_DB_PATH"),
		InsecureDevAuth:      getEnvBool("INSECURE_DEV_AUTH", false),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HistoryRetentionDays: getEnvInt("HISTORY_RETENTION_DAYS", 10),
		AllowedOrigins:       strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && !cfg.InsecureDevAuth {
		return nil, fmt.Errorf("JWT_SECRET is required unless INSECURE_DEV_AUTH=true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
