package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Logging
	LogLevel  string
	LogFormat string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// Sessions
	JWTSecret string
	JWTTTL    time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Household state cache
	StateCacheSize int
	StateCacheTTL  time.Duration

	// Aggregation
	IncludeDeposits bool

	// Broker integration
	BrokerRefreshInterval time.Duration
	BrokerActiveWindow    time.Duration
	BrokerTimeout         time.Duration
	SnapshotHour          int

	// Google Sheets export
	GoogleSpreadsheetID       string
	GoogleSummarySheetName    string
	GoogleServiceAccountJSON  string
	GoogleServiceAccountFile  string
	ExportInterval            time.Duration
}

var validBackends = []string{"memory", "sqlite"}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gagyebu.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 7*24*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gagyebu"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "household_events"),

		StateCacheSize: getEnvInt("STATE_CACHE_SIZE", 256),
		StateCacheTTL:  getEnvDuration("STATE_CACHE_TTL", 5*time.Minute),

		IncludeDeposits: getEnvBool("INCLUDE_DEPOSITS", false),

		BrokerRefreshInterval: getEnvDuration("BROKER_REFRESH_INTERVAL", 60*time.Second),
		BrokerActiveWindow:    getEnvDuration("BROKER_ACTIVE_WINDOW", 10*time.Minute),
		BrokerTimeout:         getEnvDuration("BROKER_TIMEOUT", 10*time.Second),
		SnapshotHour:          getEnvInt("SNAPSHOT_HOUR", 18),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSummarySheetName:   getEnv("GOOGLE_SUMMARY_SHEET_NAME", "Summary"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		ExportInterval:           getEnvDuration("EXPORT_INTERVAL", 15*time.Minute),
	}

	return cfg
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate checks the configuration used by the API server.
func (c *Config) Validate() error { return c.validate(true) }

// ValidateWorker checks the configuration used by background workers and
// the admin CLI, which never issue session tokens.
func (c *Config) ValidateWorker() error { return c.validate(false) }

func (c *Config) validate(sessions bool) error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
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
	}

	if sessions {
		if len(c.JWTSecret) < 32 {
			errors = append(errors, "JWT_SECRET must be set to at least 32 characters")
		}
		if c.JWTTTL < time.Minute {
			errors = append(errors, fmt.Sprintf("invalid JWT TTL %v: must be at least 1 minute", c.JWTTTL))
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

	if c.StateCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid state cache size %d: must be at least 1", c.StateCacheSize))
	}
	if c.StateCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid state cache TTL %v: must be at least 1 second", c.StateCacheTTL))
	}

	if c.BrokerRefreshInterval < 5*time.Second {
		errors = append(errors, fmt.Sprintf("invalid broker refresh interval %v: must be at least 5 seconds", c.BrokerRefreshInterval))
	}
	if c.BrokerActiveWindow < c.BrokerRefreshInterval {
		errors = append(errors, fmt.Sprintf("broker active window %v must not be shorter than the refresh interval %v", c.BrokerActiveWindow, c.BrokerRefreshInterval))
	}
	if c.BrokerTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid broker timeout %v: must be positive", c.BrokerTimeout))
	}
	if c.SnapshotHour < 0 || c.SnapshotHour > 23 {
		errors = append(errors, fmt.Sprintf("invalid snapshot hour %d: must be between 0 and 23", c.SnapshotHour))
	}

	if c.SheetsEnabled() {
		if c.GoogleSummarySheetName == "" {
			errors = append(errors, "Google summary sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.ExportInterval < time.Minute {
			errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at least 1 minute", c.ExportInterval))
		}
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
