// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package config holds the environment configuration of the API service
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// EmailVerification selects how strictly email addresses must be verified
type EmailVerification string

// Email verification modes
const (
	// VerificationOff sends no verification emails
	VerificationOff EmailVerification = "off"
	// VerificationOptional sends verification emails but lets unverified users log in
	VerificationOptional EmailVerification = "optional"
	// VerificationRequired refuses logins until the email is verified
	VerificationRequired EmailVerification = "required"
)

// Decode implements envdecode.Decoder
func (v *EmailVerification) Decode(value string) error {
	switch EmailVerification(strings.ToLower(value)) {
	case VerificationOff, VerificationOptional, VerificationRequired:
		*v = EmailVerification(strings.ToLower(value))
		return nil
	}
	return fmt.Errorf("invalid email verification '%s', must be off, optional or required", value)
}

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker". Without POSTGRES the service keeps its
// users in memory.
type Service struct {
	Port             int    `env:"PORT,default=3000" description:"the port the service listens on"`
	LogLevel         string `env:"LOG_LEVEL,default=info" description:"The level used for logger, can be debug, warning, info, error"`
	Postgres         string `env:"POSTGRES" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" description:"password to the Postgres DB"`
	PostgresSchema   string `env:"POSTGRES_SCHEMA,default=pret" description:"the schema for all tables"`

	JWTSecret    string        `env:"JWT_SECRET,required" description:"the HS256 secret for access tokens"`
	JWTIssuer    string        `env:"JWT_ISSUER,default=pret" description:"the issuer claim of access tokens"`
	JWTExpiresIn time.Duration `env:"JWT_EXPIRES_IN,default=24h" description:"lifetime of access tokens"`

	EmailVerification     EmailVerification `env:"API_EMAIL_VERIFICATION,default=optional" description:"off, optional or required"`
	InternalURL           string            `env:"API_INTERNAL_URL,default=http://localhost:3000" description:"base URL used in emails"`
	ThrottleLimit         int               `env:"API_THROTTLE_LIMIT,default=100" description:"requests per client and TTL, 0 disables throttling"`
	ThrottleLimitAccounts int               `env:"API_THROTTLE_LIMIT_ACCOUNTS,default=10" description:"requests per client and TTL on /auth"`
	ThrottleTTL           time.Duration     `env:"API_THROTTLE_TTL,default=60s" description:"throttle window"`
	InterceptAll          bool              `env:"API_INTERCEPT_ALL,default=true" description:"shape undeclared routes as standard responses"`
	CORSAllowedOrigins    []string          `env:"CORS_ALLOWED_ORIGINS,default=*" description:"semicolon separated list of allowed origins"`

	AdminEmail    string `env:"API_ADMIN_EMAIL" description:"email of an admin account created at startup if missing"`
	AdminPassword string `env:"API_ADMIN_PASSWORD" description:"password of the admin account"`

	Mailer Mailer
}

// Mailer holds the SMTP configuration. Without host, emails are logged only.
type Mailer struct {
	Host      string `env:"MAILER_HOST" description:"SMTP host"`
	Port      int    `env:"MAILER_PORT,default=587" description:"SMTP port"`
	User      string `env:"MAILER_USER" description:"SMTP user"`
	Password  string `env:"MAILER_PASSWORD" description:"SMTP password"`
	FromName  string `env:"MAILER_FROM_NAME,default=Pret" description:"sender name"`
	FromEmail string `env:"MAILER_FROM_EMAIL,default=no-reply@localhost" description:"sender address"`
}

// Load reads an optional .env file and decodes the environment. Variables
// which are already set take precedence over the file.
func Load(files ...string) (*Service, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cannot load %s: %w", file, err)
		}
	}
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		return nil, err
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}
	return service, nil
}

// MustLoad is Load but panics on error
func MustLoad(files ...string) *Service {
	service, err := Load(files...)
	if err != nil {
		panic(err)
	}
	return service
}

// Validate checks values envdecode cannot check
func (s *Service) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", s.Port)
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if len(s.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must have at least 16 characters")
	}
	if s.JWTExpiresIn <= 0 {
		return errors.New("JWT_EXPIRES_IN must be positive")
	}
	if s.ThrottleLimit < 0 || s.ThrottleLimitAccounts < 0 {
		return errors.New("throttle limits must not be negative")
	}
	if s.ThrottleTTL <= 0 {
		return errors.New("API_THROTTLE_TTL must be positive")
	}
	if (s.AdminEmail == "") != (s.AdminPassword == "") {
		return errors.New("API_ADMIN_EMAIL and API_ADMIN_PASSWORD must be set together")
	}
	if s.EmailVerification != VerificationOff && s.Mailer.Host == "" {
		logrus.Warnln("no MAILER_HOST configured, verification emails are only logged")
	}
	return nil
}

// Level returns the parsed log level
func (s *Service) Level() logrus.Level {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
