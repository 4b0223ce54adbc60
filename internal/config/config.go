package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Auth       AuthConfig
	Senders    SendersConfig
	Dispatcher DispatcherConfig
	Throttle   ThrottleConfig
	Server     ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds admin authentication configuration
type AuthConfig struct {
	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
}

// SendersConfig holds external message provider configuration
type SendersConfig struct {
	ResendAPIKey       string
	DefaultEmailSender string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
}

// DispatcherConfig holds the background message dispatcher configuration
type DispatcherConfig struct {
	SweepInterval time.Duration // how often the due-message sweep runs
	BatchLimit    int           // max messages claimed per sweep
	SendTimeout   time.Duration // upper bound for a single provider call
}

// ThrottleConfig holds cross-operator frequency cap configuration
type ThrottleConfig struct {
	MaxEmailPerDay int // max EMAIL messages per customer per rolling 24h
	MaxSMSPerDay   int // max SMS messages per customer per rolling 24h
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Auth.AdminEmail, err = requireEnv("ADMIN_EMAIL"); err != nil {
		return nil, err
	}
	if cfg.Auth.AdminPasswordHash, err = requireEnv("ADMIN_PASSWORD_HASH"); err != nil {
		return nil, err
	}

	// Sender configuration
	if cfg.Senders.ResendAPIKey, err = requireEnv("RESEND_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Senders.DefaultEmailSender, err = requireEnv("DEFAULT_EMAIL_SENDER_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.Senders.TwilioAccountSID, err = requireEnv("TWILIO_ACCOUNT_SID"); err != nil {
		return nil, err
	}
	if cfg.Senders.TwilioAuthToken, err = requireEnv("TWILIO_AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Senders.TwilioFromNumber, err = requireEnv("TWILIO_FROM_NUMBER"); err != nil {
		return nil, err
	}

	// Dispatcher configuration
	sweepSeconds, err := parseIntEnv("DISPATCH_SWEEP_SECONDS", "60")
	if err != nil {
		return nil, err
	}
	cfg.Dispatcher.SweepInterval = time.Duration(sweepSeconds) * time.Second

	if cfg.Dispatcher.BatchLimit, err = parseIntEnv("DISPATCH_BATCH_LIMIT", "100"); err != nil {
		return nil, err
	}

	sendTimeoutSeconds, err := parseIntEnv("DISPATCH_SEND_TIMEOUT_SECONDS", "15")
	if err != nil {
		return nil, err
	}
	cfg.Dispatcher.SendTimeout = time.Duration(sendTimeoutSeconds) * time.Second

	// Frequency cap configuration
	if cfg.Throttle.MaxEmailPerDay, err = parseIntEnv("MAX_EMAIL_PER_DAY", "3"); err != nil {
		return nil, err
	}
	if cfg.Throttle.MaxSMSPerDay, err = parseIntEnv("MAX_SMS_PER_DAY", "2"); err != nil {
		return nil, err
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseIntEnv retrieves an integer environment variable with a default
func parseIntEnv(key, defaultValue string) (int, error) {
	raw := getEnvWithDefault(key, defaultValue)
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return parsed, nil
}
