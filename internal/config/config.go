// Package config loads runtime settings from the environment (optionally
// seeded by .env.local) and an optional YAML policy file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Rate limit policy names referenced by the router.
const (
	PolicyAuth           = "auth"
	PolicyAuthStrict     = "auth_strict"
	PolicyAPI            = "api"
	PolicyWrite          = "write"
	PolicyForgotPassword = "forgot_password"
)

// RateLimit is a fixed-window request budget.
type RateLimit struct {
	Window time.Duration
	Max    int
}

type Config struct {
	Env      string
	Port     string
	DBURL    string
	RedisURL string

	BcryptCost       int
	SessionTTL       time.Duration
	ResetTokenTTL    time.Duration
	VerifyTokenTTL   time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	SweepInterval    time.Duration

	AllowedOrigins []string
	AppBaseURL     string

	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	MailFrom          string
	MailRatePerSecond int

	RateLimits      map[string]RateLimit
	CSRFExemptPaths []string
}

// IsProduction reports whether cookies should be issued Secure/SameSite=Strict.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Policy returns the named rate limit, falling back to the api policy.
func (c *Config) Policy(name string) RateLimit {
	if p, ok := c.RateLimits[name]; ok {
		return p
	}
	return c.RateLimits[PolicyAPI]
}

// DefaultRateLimits mirrors the budgets used by the route table.
func DefaultRateLimits() map[string]RateLimit {
	return map[string]RateLimit{
		PolicyAuth:           {Window: time.Minute, Max: 5},
		PolicyAuthStrict:     {Window: 15 * time.Minute, Max: 5},
		PolicyAPI:            {Window: time.Minute, Max: 100},
		PolicyWrite:          {Window: time.Minute, Max: 30},
		PolicyForgotPassword: {Window: time.Hour, Max: 3},
	}
}

// Load reads .env.local (if present), the environment and POLICY_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "5050"),
		DBURL:    os.Getenv("DATABASE_URL"),
		RedisURL: os.Getenv("REDIS_URL"),

		BcryptCost:       getEnvAsInt("BCRYPT_COST", 12),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
		ResetTokenTTL:    getEnvAsDuration("RESET_TOKEN_TTL", time.Hour),
		VerifyTokenTTL:   getEnvAsDuration("VERIFY_TOKEN_TTL", 24*time.Hour),
		MaxLoginAttempts: getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:  getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", time.Hour),

		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		AppBaseURL:     strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:5173"), "/"),

		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		MailFrom:          getEnv("MAIL_FROM", "Reawakened <no-reply@reawakened.app>"),
		MailRatePerSecond: getEnvAsInt("MAIL_RATE_PER_SECOND", 5),

		RateLimits: DefaultRateLimits(),
	}

	if path := os.Getenv("POLICY_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		if err := cfg.ApplyPolicy(raw); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return errors.New("DATABASE_URL is empty")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	for name, d := range map[string]time.Duration{
		"SESSION_TTL":      c.SessionTTL,
		"RESET_TOKEN_TTL":  c.ResetTokenTTL,
		"VERIFY_TOKEN_TTL": c.VerifyTokenTTL,
		"LOCKOUT_DURATION": c.LockoutDuration,
		"SWEEP_INTERVAL":   c.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MaxLoginAttempts <= 0 {
		return errors.New("MAX_LOGIN_ATTEMPTS must be positive")
	}
	return nil
}

type policyFile struct {
	RateLimits map[string]struct {
		Window string `yaml:"window"`
		Max    int    `yaml:"max"`
	} `yaml:"rate_limits"`
	CSRF struct {
		ExemptPaths []string `yaml:"exempt_paths"`
	} `yaml:"csrf"`
}

// ApplyPolicy overlays rate limits and CSRF exemptions from YAML.
func (c *Config) ApplyPolicy(raw []byte) error {
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}

	if c.RateLimits == nil {
		c.RateLimits = DefaultRateLimits()
	}
	for name, rl := range pf.RateLimits {
		window, err := time.ParseDuration(rl.Window)
		if err != nil {
			return fmt.Errorf("rate limit %q: invalid window %q: %w", name, rl.Window, err)
		}
		if window <= 0 || rl.Max <= 0 {
			return fmt.Errorf("rate limit %q: window and max must be positive", name)
		}
		c.RateLimits[name] = RateLimit{Window: window, Max: rl.Max}
	}
	if pf.CSRF.ExemptPaths != nil {
		c.CSRFExemptPaths = pf.CSRF.ExemptPaths
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %s", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsList(key string, defaultVal []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
