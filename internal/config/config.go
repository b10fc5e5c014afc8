package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hisab/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Local (guest) store
	SQLiteDBPath string

	// Remote store for signed-in users; empty keeps everyone on SQLite
	DatabaseURL string

	// AMQP change events; empty disables publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export target used by the worker
	ExportBackend         string
	GoogleSpreadsheetID   string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Currency
	RatesFile       string
	DefaultCurrency string

	// Access control
	AppPasswordHash    string
	RateLimitPerMinute int

	// Session cache
	SessionCacheSize int
	SessionTTL       time.Duration

	// Worker
	WorkerPrefetch int

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/hisab.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "hisab"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "hisab_changes"),

		ExportBackend:         getEnv("EXPORT_BACKEND", "memory"),
		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		RatesFile:       getEnv("RATES_FILE", ""),
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", core.FallbackCurrency)),

		AppPasswordHash:    getEnv("APP_PASSWORD_HASH", ""),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		SessionCacheSize: getEnvInt("SESSION_CACHE_SIZE", 256),
		SessionTTL:       getEnvDuration("SESSION_TTL", 30*time.Minute),

		WorkerPrefetch: getEnvInt("WORKER_PREFETCH", 4),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns every problem at once
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.DatabaseURL != "" {
		if parsedURL, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid database URL: %v", err))
		} else if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid database URL scheme '%s': must be 'postgres' or 'postgresql'", parsedURL.Scheme))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.ExportBackend {
	case "memory":
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets export")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be one of [memory sheets]", c.ExportBackend))
	}

	if c.RatesFile != "" {
		if _, err := os.Stat(c.RatesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("rates file does not exist: %s", c.RatesFile))
		}
	}

	if !core.ValidCurrencyCode(c.DefaultCurrency) {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be a three-letter code", c.DefaultCurrency))
	}

	if c.AppPasswordHash != "" && !strings.HasPrefix(c.AppPasswordHash, "$2") {
		errors = append(errors, "APP_PASSWORD_HASH must be a bcrypt hash")
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.SessionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid session cache size %d: must be at least 1", c.SessionCacheSize))
	}
	if c.SessionTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 second", c.SessionTTL))
	}

	if c.WorkerPrefetch < 1 || c.WorkerPrefetch > 100 {
		errors = append(errors, fmt.Sprintf("invalid worker prefetch %d: must be between 1 and 100", c.WorkerPrefetch))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
