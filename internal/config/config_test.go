package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"APP_NAME", "RABBITMQ_URL", "STATUS_SERVICE_URL", "STATUS_SERVICE_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "status-engine" {
		t.Fatalf("App.Name = %q", cfg.App.Name)
	}
	if cfg.Broker.URL != "amqp://localhost:5672" {
		t.Fatalf("Broker.URL = %q", cfg.Broker.URL)
	}
	if cfg.Authority.BaseURL != "http://status-service:4001" {
		t.Fatalf("Authority.BaseURL = %q", cfg.Authority.BaseURL)
	}
	if cfg.Authority.Timeout() != 10*time.Second {
		t.Fatalf("Authority.Timeout() = %v", cfg.Authority.Timeout())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://broker:5672")
	t.Setenv("STATUS_SERVICE_URL", "http://authority:4001")
	t.Setenv("SERVICE_API_KEY", "key-123")
	t.Setenv("STATUS_SERVICE_TIMEOUT_SECONDS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Broker.URL != "amqp://broker:5672" {
		t.Fatalf("Broker.URL = %q", cfg.Broker.URL)
	}
	if cfg.Authority.BaseURL != "http://authority:4001" {
		t.Fatalf("Authority.BaseURL = %q", cfg.Authority.BaseURL)
	}
	if cfg.Authority.APIKey != "key-123" {
		t.Fatalf("Authority.APIKey = %q", cfg.Authority.APIKey)
	}
	if cfg.Authority.Timeout() != 3*time.Second {
		t.Fatalf("Authority.Timeout() = %v", cfg.Authority.Timeout())
	}
}

func TestLoadRejectsMalformedAuthorityURL(t *testing.T) {
	t.Setenv("STATUS_SERVICE_URL", "not a url")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a malformed STATUS_SERVICE_URL")
	}
}

func TestInvalidTimeoutFallsBack(t *testing.T) {
	t.Setenv("STATUS_SERVICE_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Authority.TimeoutSeconds != 10 {
		t.Fatalf("TimeoutSeconds = %d, want fallback 10", cfg.Authority.TimeoutSeconds)
	}
}

func TestAddr(t *testing.T) {
	app := AppConfig{Host: "127.0.0.1", Port: "4000", MetricsPort: "9090"}
	if app.Addr() != "127.0.0.1:4000" {
		t.Fatalf("Addr() = %q", app.Addr())
	}
	if app.MetricsAddr() != "127.0.0.1:9090" {
		t.Fatalf("MetricsAddr() = %q", app.MetricsAddr())
	}
}
