package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/upkeep"
)

type Config struct {
	// HTTP Server
	Port string

	// Data sources
	DataBackend    string
	DataDir        string
	CategoriesFile string

	// Report snapshots. A zero retention keeps every snapshot.
	SQLiteDBPath      string
	SnapshotRetention time.Duration
	PruneInterval     time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Report cache
	CacheSize int
	CacheTTL  time.Duration

	// RecomputeRateLimit caps POST /api/recompute per client per minute.
	RecomputeRateLimit int

	LogLevel string

	// Upkeep normalization constants
	UpkeepMonthlyCalories    float64
	UpkeepBudgetMultiplier   float64
	UpkeepReferenceKm        float64
	UpkeepMonthsPerPeriod    float64
	UpkeepPeriodsPerYear     float64
	UpkeepInflationFloorYear int

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// Backends accepted by DATA_BACKEND.
var Backends = []string{"jsonl", "memory"}

func Load() *Config {
	defaults := upkeep.DefaultOptions()

	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:    getEnv("DATA_BACKEND", "jsonl"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		CategoriesFile: getEnv("CATEGORIES_FILE", ""),

		SQLiteDBPath:      getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),
		SnapshotRetention: getEnvDuration("SNAPSHOT_RETENTION", 30*24*time.Hour),
		PruneInterval:     getEnvDuration("PRUNE_INTERVAL", time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "recompute_reports"),

		CacheSize: getEnvInt("CACHE_SIZE", 100),
		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),

		RecomputeRateLimit: getEnvInt("RECOMPUTE_RATE_LIMIT", 10),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		UpkeepMonthlyCalories:    getEnvFloat("UPKEEP_MONTHLY_CALORIES", defaults.MonthlyCalories),
		UpkeepBudgetMultiplier:   getEnvFloat("UPKEEP_BUDGET_MULTIPLIER", defaults.BudgetMultiplier),
		UpkeepReferenceKm:        getEnvFloat("UPKEEP_REFERENCE_KM", defaults.ReferenceKm),
		UpkeepMonthsPerPeriod:    getEnvFloat("UPKEEP_MONTHS_PER_PERIOD", defaults.MonthsPerPeriod),
		UpkeepPeriodsPerYear:     getEnvFloat("UPKEEP_PERIODS_PER_YEAR", defaults.PeriodsPerYear),
		UpkeepInflationFloorYear: getEnvInt("UPKEEP_INFLATION_FLOOR_YEAR", defaults.InflationFloorYear),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}
}

// Upkeep returns the normalization options configured for the upkeep report.
func (c *Config) Upkeep() upkeep.Options {
	opts := upkeep.DefaultOptions()
	opts.MonthlyCalories = c.UpkeepMonthlyCalories
	opts.BudgetMultiplier = c.UpkeepBudgetMultiplier
	opts.ReferenceKm = c.UpkeepReferenceKm
	opts.MonthsPerPeriod = c.UpkeepMonthsPerPeriod
	opts.PeriodsPerYear = c.UpkeepPeriodsPerYear
	opts.InflationFloorYear = c.UpkeepInflationFloorYear
	return opts
}

// SheetsEnabled reports whether Google Sheets export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	isValidBackend := false
	for _, backend := range Backends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}
	if c.DataBackend == "jsonl" && c.DataDir == "" {
		errors = append(errors, "data directory cannot be empty when using jsonl backend")
	}

	if c.CategoriesFile != "" {
		if _, err := os.Stat(c.CategoriesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("categories file does not exist: %s", c.CategoriesFile))
		}
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

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	if c.SnapshotRetention < 0 || c.PruneInterval < 0 {
		errors = append(errors, "snapshot retention and prune interval cannot be negative")
	}
	if c.RecomputeRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid recompute rate limit %d: cannot be negative", c.RecomputeRateLimit))
	}

	if c.UpkeepMonthlyCalories <= 0 || c.UpkeepBudgetMultiplier <= 0 || c.UpkeepReferenceKm <= 0 {
		errors = append(errors, "upkeep calories, budget multiplier and reference km must be positive")
	}
	if c.UpkeepMonthsPerPeriod <= 0 || c.UpkeepPeriodsPerYear <= 0 {
		errors = append(errors, "upkeep months per period and periods per year must be positive")
	}

	if c.SheetsEnabled() {
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
