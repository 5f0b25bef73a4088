package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	GeminiModel  string
	GitHubToken  string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	LogFormat    string
	JWTSecret    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SearchCacheTTL      time.Duration
	GitHubCacheTTL      time.Duration
	GitHubSearchRPM     int
	ResearchConcurrency int
	DailySearchLimit    int

	BrowserSearch bool
	BrowserBin    string
}

// LoadConfig reads an optional .env file and the process environment.
// Missing credentials are not an error here: an absent Gemini key puts the
// analysis engine in unconfigured mode, and JWT_SECRET is only checked by
// commands that serve HTTP (see RequireJWTSecret).
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GitHubToken:  getEnv("GITHUB_TOKEN", ""),
		DatabaseURL:  getEnv("DATABASE_URL", "nexus.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		SearchCacheTTL:      getEnvAsDuration("SEARCH_CACHE_TTL", time.Hour),
		GitHubCacheTTL:      getEnvAsDuration("GITHUB_CACHE_TTL", 30*time.Minute),
		GitHubSearchRPM:     getEnvAsInt("GITHUB_SEARCH_RPM", 30),
		ResearchConcurrency: getEnvAsInt("RESEARCH_CONCURRENCY", 4),
		DailySearchLimit:    getEnvAsInt("DAILY_SEARCH_LIMIT", 5),

		BrowserSearch: getEnvAsBool("BROWSER_SEARCH", false),
		BrowserBin:    getEnv("BROWSER_BIN", ""),
	}

	if cfg.GitHubSearchRPM <= 0 {
		return cfg, fmt.Errorf("GITHUB_SEARCH_RPM must be positive, got %d", cfg.GitHubSearchRPM)
	}
	if cfg.ResearchConcurrency <= 0 {
		return cfg, fmt.Errorf("RESEARCH_CONCURRENCY must be positive, got %d", cfg.ResearchConcurrency)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return cfg, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

// RequireJWTSecret fails when the HTTP server would be unable to sign tokens.
func (c Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
