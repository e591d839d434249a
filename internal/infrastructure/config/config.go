package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-notification-realtime/internal/infrastructure/logger"
)

type Config struct {
	// HTTP server
	HTTPAddr string `env:"HTTP_ADDR" default:":8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"console"`
	LogOutput string `env:"LOG_OUTPUT" default:"stdout"`
	LogFile   string `env:"LOG_FILE" default:"logs/app.log"`

	// Authentication; an empty secret disables token checks
	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" default:"24h"`

	// Publish endpoint rate limit
	PublishRate  float64 `env:"PUBLISH_RATE" default:"20"`
	PublishBurst int     `env:"PUBLISH_BURST" default:"40"`

	// Realtime client (notifyctl listen)
	RealtimeURL         string        `env:"REALTIME_URL" default:"ws://localhost:8080/ws"`
	RealtimeUserID      string        `env:"REALTIME_USER_ID"`
	RealtimeChannel     string        `env:"REALTIME_CHANNEL" default:"notifications"`
	RealtimeBaseDelay   time.Duration `env:"REALTIME_BASE_DELAY" default:"1s"`
	RealtimeMaxAttempts int           `env:"REALTIME_MAX_ATTEMPTS" default:"5"`
	RealtimeToken       string        `env:"REALTIME_TOKEN"`
}

// Load reads .env files (when present) and the environment. Variables
// already set in the environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	config := &Config{}

	loadEnvString(&config.HTTPAddr, "HTTP_ADDR", ":8080")

	loadEnvString(&config.LogLevel, "LOG_LEVEL", "info")
	loadEnvString(&config.LogFormat, "LOG_FORMAT", "console")
	loadEnvString(&config.LogOutput, "LOG_OUTPUT", "stdout")
	loadEnvString(&config.LogFile, "LOG_FILE", "logs/app.log")

	loadEnvString(&config.JWTSecret, "JWT_SECRET", "")
	if err := loadEnvDuration(&config.JWTExpiry, "JWT_EXPIRY", 24*time.Hour); err != nil {
		return nil, err
	}

	if err := loadEnvFloat(&config.PublishRate, "PUBLISH_RATE", 20); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.PublishBurst, "PUBLISH_BURST", 40); err != nil {
		return nil, err
	}

	loadEnvString(&config.RealtimeURL, "REALTIME_URL", "ws://localhost:8080/ws")
	loadEnvString(&config.RealtimeUserID, "REALTIME_USER_ID", "")
	loadEnvString(&config.RealtimeChannel, "REALTIME_CHANNEL", "notifications")
	if err := loadEnvDuration(&config.RealtimeBaseDelay, "REALTIME_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.RealtimeMaxAttempts, "REALTIME_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	loadEnvString(&config.RealtimeToken, "REALTIME_TOKEN", "")

	return config, nil
}

func loadEnvString(target *string, key, defaultValue string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.HTTPAddr == "" {
		errors = append(errors, "HTTP_ADDR must not be empty")
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, "LOG_LEVEL must be one of: debug, info, warn, error, fatal")
	}
	validLogFormats := []string{"text", "json", "console"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}
	validLogOutputs := []string{"stdout", "stderr", "file", "discard"}
	if !contains(validLogOutputs, c.LogOutput) {
		errors = append(errors, fmt.Sprintf("LOG_OUTPUT must be one of: %s", strings.Join(validLogOutputs, ", ")))
	}
	if c.LogOutput == "file" && c.LogFile == "" {
		errors = append(errors, "LOG_FILE is required when LOG_OUTPUT=file")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT_SECRET should be at least 32 characters long")
	}
	if c.JWTExpiry <= 0 {
		errors = append(errors, "JWT_EXPIRY must be positive")
	}

	if c.PublishRate <= 0 {
		errors = append(errors, "PUBLISH_RATE must be positive")
	}
	if c.PublishBurst < 1 {
		errors = append(errors, "PUBLISH_BURST must be at least 1")
	}

	if u, err := url.Parse(c.RealtimeURL); err != nil || !contains([]string{"ws", "wss", "http", "https"}, u.Scheme) {
		errors = append(errors, "REALTIME_URL must be a ws, wss, http or https URL")
	}
	if c.RealtimeChannel == "" {
		errors = append(errors, "REALTIME_CHANNEL must not be empty")
	}
	if c.RealtimeBaseDelay <= 0 {
		errors = append(errors, "REALTIME_BASE_DELAY must be positive")
	}
	if c.RealtimeMaxAttempts < 1 {
		errors = append(errors, "REALTIME_MAX_ATTEMPTS must be at least 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// AuthEnabled reports whether channel connections must carry a token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// LoggerConfig maps the LOG_* settings onto a logger.Config.
func (c *Config) LoggerConfig() *logger.Config {
	cfg := logger.NewDefaultConfig()
	if level, err := logger.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = level
	}
	cfg.Format = c.LogFormat
	cfg.Output = c.LogOutput
	cfg.FilePath = c.LogFile
	return cfg
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
