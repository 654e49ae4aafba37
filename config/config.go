// Package config provides configuration management for the campus portal
// with validation and clear documentation for operators.
//
// Configuration Sources (12-factor app principles):
//  1. Default values (hardcoded)
//  2. .env file (local development via godotenv)
//  3. Environment variables (container runtime)
//
// Usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the portal
type Config struct {
	Service   ServiceConfig   // Service-specific settings (port, name, version)
	Tracing   TracingConfig   // OpenTelemetry configuration
	Profiling ProfilingConfig // Pyroscope continuous profiling
	Logging   LoggingConfig   // Structured logging (Zap)
	Metrics   MetricsConfig   // Prometheus metrics
	Database  DatabaseConfig  // Document store (PostgreSQL); empty host selects the in-memory store
	Identity  IdentityConfig  // Hosted identity service
	Session   SessionConfig   // Visitor and session cookies
	Gate      GateConfig      // Shared-secret campus gate
	Profile   ProfileConfig   // Profile completion rules

	ShutdownTimeout time.Duration // from SHUTDOWN_TIMEOUT env (default: 10s, max: 60s)
	// ReadinessDrainDelay: delay after failing readiness before shutting down the HTTP server.
	// From READINESS_DRAIN_DELAY env (default: 5s, max: 30s).
	ReadinessDrainDelay time.Duration
}

// ServiceConfig defines basic service configuration
type ServiceConfig struct {
	Name    string // from SERVICE_NAME env (default: "campus-portal")
	Port    string // HTTP server port (default: "8080") - from PORT env
	Version string // from VERSION env
	Env     string // Environment (dev/staging/production) - from ENV env
}

// TracingConfig defines OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled            bool    // from TRACING_ENABLED env (default: false)
	Endpoint           string  // OTel Collector endpoint - from OTEL_COLLECTOR_ENDPOINT env
	SampleRate         float64 // Trace sampling rate (0.0-1.0) - from OTEL_SAMPLE_RATE env
	ServiceName        string  // Service name for traces (defaults to ServiceConfig.Name)
	MaxExportBatchSize int     // Max spans per batch (default: 512)
}

// ProfilingConfig defines Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled     bool   // from PROFILING_ENABLED env (default: false)
	Endpoint    string // from PYROSCOPE_ENDPOINT env
	ServiceName string
}

// LoggingConfig defines structured logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error (default: "info") - from LOG_LEVEL env
	Format string // json, console (default: "json") - from LOG_FORMAT env
}

// MetricsConfig defines Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   // from METRICS_ENABLED env (default: true)
	Path    string // from METRICS_PATH env (default: "/metrics")
}

// DatabaseConfig defines the PostgreSQL document store configuration
type DatabaseConfig struct {
	Host           string // from DB_HOST env; empty selects the in-memory store
	Port           string // from DB_PORT env (default: "5432")
	Name           string // from DB_NAME env
	User           string // from DB_USER env
	Password       string // from DB_PASSWORD env
	SSLMode        string // from DB_SSLMODE env (default: "disable")
	MaxConnections int    // from DB_POOL_MAX_CONNECTIONS env (default: 10)
	Migrate        bool   // run embedded migrations at startup - from DB_MIGRATE env (default: true)
}

// BuildDSN constructs PostgreSQL connection string from config
func (c *DatabaseConfig) BuildDSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// Enabled reports whether a PostgreSQL document store is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// IdentityConfig defines the hosted identity service endpoints.
// The API key is a public client credential, not a secret.
type IdentityConfig struct {
	APIKey              string        // from IDENTITY_API_KEY env
	Endpoint            string        // from IDENTITY_ENDPOINT env
	TokenEndpoint       string        // from IDENTITY_TOKEN_ENDPOINT env
	FederatedRequestURI string        // from IDENTITY_FEDERATED_REQUEST_URI env
	GoogleClientID      string        // from IDENTITY_GOOGLE_CLIENT_ID env (default: empty, no Google button)
	Timeout             time.Duration // from IDENTITY_TIMEOUT env (default: 10s)
}

// SessionConfig defines visitor tracking and persisted sign-in.
type SessionConfig struct {
	Secret        string        // HMAC key for the session cookie - from SESSION_SECRET env
	CookieName    string        // from SESSION_COOKIE env (default: "portal_session")
	VisitorCookie string        // from VISITOR_COOKIE env (default: "portal_visitor")
	TTL           time.Duration // persisted sign-in lifetime - from SESSION_TTL env (default: 720h)
	SecureCookies bool          // from SESSION_COOKIE_SECURE env (default: false)
	IdleTimeout   time.Duration // in-memory visitor state lifetime - from VISITOR_IDLE_TIMEOUT env (default: 2h)
	SweepInterval time.Duration // from VISITOR_SWEEP_INTERVAL env (default: 5m)
}

// GateConfig defines the shared-secret campus gate. This is a soft access gate
// compared in process memory, not an authentication mechanism.
type GateConfig struct {
	Secret      string        // from GATE_SECRET env (default: "Super Zylo")
	ErrorWindow time.Duration // from GATE_ERROR_WINDOW env (default: 3s)
}

// ProfileConfig defines the profile completion rules.
type ProfileConfig struct {
	CountryCode   string // from PROFILE_COUNTRY_CODE env (default: "+51")
	PhoneDigits   int    // from PROFILE_PHONE_DIGITS env (default: 9)
	MinNameLength int    // from PROFILE_MIN_NAME_LENGTH env (default: 3)
}

// Load reads configuration from environment variables with defaults
// It automatically loads .env file if present (for local development)
//
// Priority: .env file < environment variables
func Load() *Config {
	// godotenv.Load() fails silently if .env doesn't exist
	_ = godotenv.Load()

	serviceName := getEnv("SERVICE_NAME", "campus-portal")

	return &Config{
		Service: ServiceConfig{
			Name:    serviceName,
			Port:    getEnv("PORT", "8080"),
			Version: getEnv("VERSION", "dev"),
			Env:     getEnv("ENV", "development"),
		},
		Tracing: TracingConfig{
			Enabled:            getEnvBool("TRACING_ENABLED", false),
			Endpoint:           getEnv("OTEL_COLLECTOR_ENDPOINT", "localhost:4318"),
			SampleRate:         getEnvFloat("OTEL_SAMPLE_RATE", 0.1),
			ServiceName:        serviceName,
			MaxExportBatchSize: getEnvInt("OTEL_BATCH_SIZE", 512),
		},
		Profiling: ProfilingConfig{
			Enabled:     getEnvBool("PROFILING_ENABLED", false),
			Endpoint:    getEnv("PYROSCOPE_ENDPOINT", "http://localhost:4040"),
			ServiceName: serviceName,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", ""),
			Port:           getEnv("DB_PORT", "5432"),
			Name:           getEnv("DB_NAME", ""),
			User:           getEnv("DB_USER", ""),
			Password:       getEnv("DB_PASSWORD", ""),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getEnvInt("DB_POOL_MAX_CONNECTIONS", 10),
			Migrate:        getEnvBool("DB_MIGRATE", true),
		},
		Identity: IdentityConfig{
			APIKey:              getEnv("IDENTITY_API_KEY", ""),
			Endpoint:            getEnv("IDENTITY_ENDPOINT", "https://identitytoolkit.googleapis.com/v1"),
			TokenEndpoint:       getEnv("IDENTITY_TOKEN_ENDPOINT", "https://securetoken.googleapis.com/v1/token"),
			FederatedRequestURI: getEnv("IDENTITY_FEDERATED_REQUEST_URI", "http://localhost"),
			GoogleClientID:      getEnv("IDENTITY_GOOGLE_CLIENT_ID", ""),
			Timeout:             getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second, time.Minute),
		},
		Session: SessionConfig{
			Secret:        getEnv("SESSION_SECRET", ""),
			CookieName:    getEnv("SESSION_COOKIE", "portal_session"),
			VisitorCookie: getEnv("VISITOR_COOKIE", "portal_visitor"),
			TTL:           getEnvDuration("SESSION_TTL", 30*24*time.Hour, 365*24*time.Hour),
			SecureCookies: getEnvBool("SESSION_COOKIE_SECURE", false),
			IdleTimeout:   getEnvDuration("VISITOR_IDLE_TIMEOUT", 2*time.Hour, 7*24*time.Hour),
			SweepInterval: getEnvDuration("VISITOR_SWEEP_INTERVAL", 5*time.Minute, time.Hour),
		},
		Gate: GateConfig{
			Secret:      getEnv("GATE_SECRET", "Super Zylo"),
			ErrorWindow: getEnvDuration("GATE_ERROR_WINDOW", 3*time.Second, time.Minute),
		},
		Profile: ProfileConfig{
			CountryCode:   getEnv("PROFILE_COUNTRY_CODE", "+51"),
			PhoneDigits:   getEnvInt("PROFILE_PHONE_DIGITS", 9),
			MinNameLength: getEnvInt("PROFILE_MIN_NAME_LENGTH", 3),
		},
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second, 60*time.Second),
		ReadinessDrainDelay: getEnvDuration("READINESS_DRAIN_DELAY", 5*time.Second, 30*time.Second),
	}
}

// Validate performs validation of all configuration fields
// Returns every problem at once for operator troubleshooting
func (c *Config) Validate() error {
	var errors []string

	if c.Service.Name == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}
	if _, err := strconv.Atoi(c.Service.Port); err != nil {
		errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Service.Port))
	}
	validEnvs := []string{"development", "dev", "staging", "stage", "production", "prod"}
	if !contains(validEnvs, c.Service.Env) {
		errors = append(errors, fmt.Sprintf("ENV must be one of %v, got: %s", validEnvs, c.Service.Env))
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			errors = append(errors, "OTEL_COLLECTOR_ENDPOINT is required when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
			errors = append(errors, fmt.Sprintf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got: %.2f", c.Tracing.SampleRate))
		}
	}

	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		errors = append(errors, "PYROSCOPE_ENDPOINT is required when profiling is enabled")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logging.Level) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of %v, got: %s", validLogLevels, c.Logging.Level))
	}
	validLogFormats := []string{"json", "console"}
	if !contains(validLogFormats, c.Logging.Format) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of %v, got: %s", validLogFormats, c.Logging.Format))
	}

	if c.Database.Enabled() {
		if c.Database.Name == "" {
			errors = append(errors, "DB_NAME is required when DB_HOST is set")
		}
		if c.Database.User == "" {
			errors = append(errors, "DB_USER is required when DB_HOST is set")
		}
		if _, err := strconv.Atoi(c.Database.Port); err != nil {
			errors = append(errors, fmt.Sprintf("DB_PORT must be a valid number, got: %s", c.Database.Port))
		}
		if c.Database.MaxConnections <= 0 {
			errors = append(errors, "DB_POOL_MAX_CONNECTIONS must be positive")
		}
	}

	if c.Identity.APIKey == "" {
		errors = append(errors, "IDENTITY_API_KEY is required")
	}
	if c.Identity.Endpoint == "" || c.Identity.TokenEndpoint == "" {
		errors = append(errors, "IDENTITY_ENDPOINT and IDENTITY_TOKEN_ENDPOINT are required")
	}

	if len(c.Session.Secret) < 32 {
		errors = append(errors, "SESSION_SECRET must be at least 32 characters")
	}
	if c.Session.CookieName == "" || c.Session.VisitorCookie == "" {
		errors = append(errors, "SESSION_COOKIE and VISITOR_COOKIE must not be empty")
	}
	if c.Session.CookieName == c.Session.VisitorCookie {
		errors = append(errors, "SESSION_COOKIE and VISITOR_COOKIE must differ")
	}

	if c.Gate.Secret == "" {
		errors = append(errors, "GATE_SECRET must not be empty")
	}

	if !strings.HasPrefix(c.Profile.CountryCode, "+") {
		errors = append(errors, fmt.Sprintf("PROFILE_COUNTRY_CODE must start with '+', got: %s", c.Profile.CountryCode))
	}
	if c.Profile.PhoneDigits <= 0 {
		errors = append(errors, "PROFILE_PHONE_DIGITS must be positive")
	}
	if c.Profile.MinNameLength <= 0 {
		errors = append(errors, "PROFILE_MIN_NAME_LENGTH must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Service.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Service.Env)
	return env == "production" || env == "prod"
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool accepts "true", "1", "yes" for true; anything else is false
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	value = strings.ToLower(value)
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDuration reads a Go duration ("10s", "1m", "720h").
// Returns default on invalid, non-positive or too large values (silent fallback for startup safety).
func getEnvDuration(key string, defaultValue, maxValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 || d > maxValue {
		return defaultValue
	}
	return d
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
