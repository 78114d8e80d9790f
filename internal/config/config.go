package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App       AppConfig
	Broker    BrokerConfig
	Authority AuthorityConfig
	Logger    LoggerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	MetricsPort           string
	Version               string
	RequestTimeoutSeconds int
}

// BrokerConfig holds message broker connection values.
type BrokerConfig struct {
	URL string
}

// AuthorityConfig locates the remote status authority.
type AuthorityConfig struct {
	BaseURL        string
	APIKey         string
	JWTSecret      string
	TimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "status-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "4000"),
			MetricsPort:           getEnv("METRICS_PORT", "9090"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Broker: BrokerConfig{
			URL: getEnv("RABBITMQ_URL", "amqp://localhost:5672"),
		},
		Authority: AuthorityConfig{
			BaseURL:        getEnv("STATUS_SERVICE_URL", "http://status-service:4001"),
			APIKey:         os.Getenv("SERVICE_API_KEY"),
			JWTSecret:      os.Getenv("SERVICE_JWT_SECRET"),
			TimeoutSeconds: getEnvAsInt("STATUS_SERVICE_TIMEOUT_SECONDS", 10),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if _, err := url.ParseRequestURI(cfg.Authority.BaseURL); err != nil {
		return nil, fmt.Errorf("STATUS_SERVICE_URL %q is not a valid URL: %w", cfg.Authority.BaseURL, err)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// MetricsAddr returns the metrics listener bind address.
func (a AppConfig) MetricsAddr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.MetricsPort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the remote authority request timeout.
func (c AuthorityConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
