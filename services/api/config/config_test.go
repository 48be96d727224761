package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	service, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 3000, service.Port)
	assert.Equal(t, "pret", service.PostgresSchema)
	assert.Equal(t, 24*time.Hour, service.JWTExpiresIn)
	assert.Equal(t, VerificationOptional, service.EmailVerification)
	assert.Equal(t, time.Minute, service.ThrottleTTL)
	assert.True(t, service.InterceptAll)
	assert.Equal(t, []string{"*"}, service.CORSAllowedOrigins)
	assert.Equal(t, 587, service.Mailer.Port)
}

func TestLoadDotEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("PRET_TEST_FROM_FILE=1\n"), 0o600))
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("API_EMAIL_VERIFICATION", "Required")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example;https://b.example")
	t.Setenv("API_THROTTLE_TTL", "2m")
	t.Cleanup(func() { os.Unsetenv("PRET_TEST_FROM_FILE") })

	service, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "1", os.Getenv("PRET_TEST_FROM_FILE"))
	assert.Equal(t, VerificationRequired, service.EmailVerification)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, service.CORSAllowedOrigins)
	assert.Equal(t, 2*time.Minute, service.ThrottleTTL)
}

func TestLoadInvalid(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Setenv("JWT_SECRET", "")
	_, err := Load(missing)
	assert.Error(t, err, "secret is required")

	t.Setenv("JWT_SECRET", "short")
	_, err = Load(missing)
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("API_EMAIL_VERIFICATION", "sometimes")
	_, err = Load(missing)
	assert.Error(t, err)

	t.Setenv("API_EMAIL_VERIFICATION", "off")
	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load(missing)
	assert.Error(t, err)
}

func TestValidateAdmin(t *testing.T) {
	s := &Service{Port: 3000, LogLevel: "info", JWTSecret: "0123456789abcdef", JWTExpiresIn: time.Hour, ThrottleTTL: time.Minute, EmailVerification: VerificationOff}
	require.NoError(t, s.Validate())
	s.AdminEmail = "admin@example.com"
	assert.Error(t, s.Validate())
	s.AdminPassword = "adminsecret"
	assert.NoError(t, s.Validate())
}
