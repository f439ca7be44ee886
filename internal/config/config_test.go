package config

import (
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "coincall"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndBroker(t *testing.T) {
	c := validConfig("production")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE / AMQP_URL")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Signaling.FreshnessWindow != 20*time.Second {
		t.Fatalf("expected 20s freshness window, got %v", c.Signaling.FreshnessWindow)
	}
	if c.Signaling.RingTimeout != 45*time.Second {
		t.Fatalf("expected 45s ring timeout, got %v", c.Signaling.RingTimeout)
	}
	if c.Signaling.PollInterval != 3*time.Second {
		t.Fatalf("expected 3s poll interval, got %v", c.Signaling.PollInterval)
	}
	if c.Media.TokenSecret != "secret" {
		t.Fatalf("expected media secret to fall back to jwt secret locally")
	}
	if c.Billing.IncrementSeconds != 1 {
		t.Fatalf("expected 1s billing increment, got %d", c.Billing.IncrementSeconds)
	}
}

func TestValidate_RejectsEarnShareOutOfRange(t *testing.T) {
	c := validConfig("local")
	c.Billing.EarnSharePercent = 120
	if err := c.Validate(); err == nil {
		t.Fatalf("expected earn share error")
	}
}

func TestParse_ReadsTaggedEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("RING_TIMEOUT", "30s")

	c, err := Parse[Config]()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.App.Env != "dev" || c.App.Port != 9090 {
		t.Fatalf("unexpected app config: %+v", c.App)
	}
	if c.Signaling.RingTimeout != 30*time.Second {
		t.Fatalf("expected 30s ring timeout, got %v", c.Signaling.RingTimeout)
	}
	if c.Signaling.PollInterval != 3*time.Second {
		t.Fatalf("expected envDefault poll interval, got %v", c.Signaling.PollInterval)
	}
}

func TestAgentValidate_DefaultsDeviceID(t *testing.T) {
	c := AgentConfig{Env: "local", APIBaseURL: "http://localhost:8080", AccessToken: "t", UserID: "u1"}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.DeviceID != "u1" {
		t.Fatalf("expected device id to default to user id, got %q", c.DeviceID)
	}
}
