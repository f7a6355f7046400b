package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Location sources and submission sinks understood by the funnel.
const (
	SourceAPI      = "api"
	SourcePostgres = "postgres"
	SourceFile     = "file"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ReviewAPI   ReviewAPIConfig
	Funnel      FunnelConfig
	OTEL        OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ReviewAPIConfig holds settings for the remote review API
type ReviewAPIConfig struct {
	URL     string
	Token   string
	Timeout time.Duration

	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// FunnelConfig holds feedback funnel settings
type FunnelConfig struct {
	LocationSource   string
	SubmissionSink   string
	LocationsFile    string
	Debounce         time.Duration
	SubmitTimeout    time.Duration
	StateTTL         time.Duration
	StateSecret      string
	LocationCacheTTL time.Duration
	DurableTTL       time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "review_funnel"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		ReviewAPI: ReviewAPIConfig{
			URL:             getEnv("REVIEW_API_URL", "http://localhost:3000/api"),
			Token:           getEnv("REVIEW_API_TOKEN", ""),
			Timeout:         getEnvAsDuration("REVIEW_API_TIMEOUT", 8*time.Second),
			BreakerFailures: getEnvAsInt("REVIEW_API_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("REVIEW_API_BREAKER_COOLDOWN", 30*time.Second),
		},
		Funnel: FunnelConfig{
			LocationSource:   strings.ToLower(getEnv("FUNNEL_LOCATION_SOURCE", SourceAPI)),
			SubmissionSink:   strings.ToLower(getEnv("FUNNEL_SUBMISSION_SINK", SourceAPI)),
			LocationsFile:    getEnv("FUNNEL_LOCATIONS_FILE", "locations.yaml"),
			Debounce:         getEnvAsDuration("FUNNEL_DEBOUNCE", 1500*time.Millisecond),
			SubmitTimeout:    getEnvAsDuration("FUNNEL_SUBMIT_TIMEOUT", 10*time.Second),
			StateTTL:         getEnvAsDuration("FUNNEL_STATE_TTL", 2*time.Hour),
			StateSecret:      getEnv("FUNNEL_STATE_SECRET", ""),
			LocationCacheTTL: getEnvAsDuration("FUNNEL_LOCATION_CACHE_TTL", 5*time.Minute),
			DurableTTL:       getEnvAsDuration("FUNNEL_DURABLE_TTL", 7*24*time.Hour),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "review-funnel"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if cfg.Funnel.StateSecret == "" && cfg.IsDevelopment() {
		cfg.Funnel.StateSecret = "development-only-funnel-secret"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	switch c.Funnel.LocationSource {
	case SourceAPI, SourcePostgres, SourceFile:
	default:
		return fmt.Errorf("unknown FUNNEL_LOCATION_SOURCE %q", c.Funnel.LocationSource)
	}
	switch c.Funnel.SubmissionSink {
	case SourceAPI, SourcePostgres:
	default:
		return fmt.Errorf("unknown FUNNEL_SUBMISSION_SINK %q", c.Funnel.SubmissionSink)
	}
	if c.Funnel.StateSecret == "" {
		return fmt.Errorf("FUNNEL_STATE_SECRET is required outside development")
	}
	if c.Funnel.Debounce < 0 {
		return fmt.Errorf("FUNNEL_DEBOUNCE must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// NeedsDatabase reports whether any funnel backend is Postgres
func (c *Config) NeedsDatabase() bool {
	return c.Funnel.LocationSource == SourcePostgres || c.Funnel.SubmissionSink == SourcePostgres
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or bare milliseconds ("1500").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
