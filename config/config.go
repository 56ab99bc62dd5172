// Package config loads server configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/warp/payroll-ledger/accounts"
)

// Config holds application configuration.
type Config struct {
	Port           int                 `validate:"min=1,max=65535"`
	DBPath         string              `validate:"required"`
	Currencies     []accounts.Currency `validate:"min=1,dive,required"`
	NotesSeparator string              `validate:"required"`
	LogLevel       slog.Level
}

// Load reads .env if present, then the process environment. Variables set
// in the environment win over .env values.
func Load() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:         getEnv("PAYROLL_DB", "payroll.db"),
		NotesSeparator: getEnv("PAYROLL_NOTES_SEPARATOR", " | "),
		Currencies:     ParseCurrencies(getEnv("PAYROLL_CURRENCIES", "ILS,USD")),
	}

	port, err := strconv.Atoi(getEnv("PAYROLL_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_PORT: %w", err)
	}
	cfg.Port = port

	if cfg.LogLevel, err = ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ParseCurrencies splits a comma-separated list, upper-casing codes and
// dropping blanks. The first code is the primary currency.
func ParseCurrencies(s string) []accounts.Currency {
	var out []accounts.Currency
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code != "" {
			out = append(out, accounts.Currency(code))
		}
	}
	return out
}

// ParseLevel maps LOG_LEVEL values to slog levels. Empty means info;
// anything else is read by slog.Level.UnmarshalText, so "warn+2" works too.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
