// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	OpenAIAPIKey    string
	ChatModel       string
	OnboardingModel string
	ReviewModel     string

	Session SessionConfig

	PromptCacheTTL time.Duration
}

// SessionConfig carries the session timing and turn tunables.
type SessionConfig struct {
	SuggestedDurationMinutes int           // 1-120
	SuggestedTurns           int           // 1-200
	ReminderIntervalTurns    int           // 1-10
	StaleAfter               time.Duration // open sessions older than this are force-closed
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/calmline.db"),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ChatModel:       getEnv("CHAT_MODEL", "gpt-4o"),
		OnboardingModel: getEnv("ONBOARDING_MODEL", "gpt-4o-mini"),
		ReviewModel:     getEnv("REVIEW_MODEL", "gpt-4o-mini"),

		Session: SessionConfig{
			SuggestedDurationMinutes: getEnvInt("SESSION_SUGGESTED_DURATION_MINUTES", 30),
			SuggestedTurns:           getEnvInt("SESSION_SUGGESTED_TURNS", 30),
			ReminderIntervalTurns:    getEnvInt("SESSION_REMINDER_INTERVAL_TURNS", 3),
			StaleAfter:               getEnvDuration("SESSION_STALE_AFTER", 24*time.Hour),
		},

		PromptCacheTTL: getEnvDuration("PROMPT_CACHE_TTL", 5*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are in range.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	s := c.Session
	if s.SuggestedDurationMinutes < 1 || s.SuggestedDurationMinutes > 120 {
		return fmt.Errorf("SESSION_SUGGESTED_DURATION_MINUTES must be between 1 and 120, got %d", s.SuggestedDurationMinutes)
	}
	if s.SuggestedTurns < 1 || s.SuggestedTurns > 200 {
		return fmt.Errorf("SESSION_SUGGESTED_TURNS must be between 1 and 200, got %d", s.SuggestedTurns)
	}
	if s.ReminderIntervalTurns < 1 || s.ReminderIntervalTurns > 10 {
		return fmt.Errorf("SESSION_REMINDER_INTERVAL_TURNS must be between 1 and 10, got %d", s.ReminderIntervalTurns)
	}
	if s.StaleAfter <= 0 {
		return fmt.Errorf("SESSION_STALE_AFTER must be positive")
	}
	if c.PromptCacheTTL <= 0 {
		return fmt.Errorf("PROMPT_CACHE_TTL must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
