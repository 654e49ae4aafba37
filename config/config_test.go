package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDENTITY_API_KEY", "public-key")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "campus-portal", cfg.Service.Name)
	assert.Equal(t, "8080", cfg.Service.Port)
	assert.Equal(t, "Super Zylo", cfg.Gate.Secret)
	assert.Equal(t, 3*time.Second, cfg.Gate.ErrorWindow)
	assert.Equal(t, "+51", cfg.Profile.CountryCode)
	assert.Equal(t, 9, cfg.Profile.PhoneDigits)
	assert.Equal(t, 3, cfg.Profile.MinNameLength)
	assert.False(t, cfg.Database.Enabled())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_GoogleClientID(t *testing.T) {
	validEnv(t)
	t.Setenv("IDENTITY_GOOGLE_CLIENT_ID", "")
	assert.Empty(t, Load().Identity.GoogleClientID)

	t.Setenv("IDENTITY_GOOGLE_CLIENT_ID", "1234-abc.apps.googleusercontent.com")
	assert.Equal(t, "1234-abc.apps.googleusercontent.com", Load().Identity.GoogleClientID)
}

func TestLoad_DurationFallbacks(t *testing.T) {
	validEnv(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("READINESS_DRAIN_DELAY", "garbage")
	t.Setenv("GATE_ERROR_WINDOW", "1500ms")

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReadinessDrainDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Gate.ErrorWindow)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Setenv("IDENTITY_API_KEY", "")
	t.Setenv("SESSION_SECRET", "short")
	t.Setenv("PORT", "http")
	t.Setenv("LOG_LEVEL", "trace")
	t.Setenv("DB_HOST", "db.local")
	t.Setenv("PROFILE_COUNTRY_CODE", "51")

	err := Load().Validate()
	require.Error(t, err)
	for _, want := range []string{
		"IDENTITY_API_KEY is required",
		"SESSION_SECRET must be at least 32 characters",
		"PORT must be a valid number",
		"LOG_LEVEL must be one of",
		"DB_NAME is required when DB_HOST is set",
		"PROFILE_COUNTRY_CODE must start with '+'",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBuildDSN(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: "5433", Name: "portal", User: "u", Password: "p", SSLMode: "require"}
	assert.Equal(t, "postgresql://u:p@h:5433/portal?sslmode=require", db.BuildDSN())
}
