package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env (optionally seeded from the file named by ENV_FILE).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	AMQP      AMQPConfig
	Media     MediaConfig
	Signaling SignalingConfig
	Billing   BillingConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV"`
	Port int    `env:"APP_PORT"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`
}

type RedisConfig struct {
	Host string `env:"REDIS_HOST"`
	Port int    `env:"REDIS_PORT"`
}

type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TTL"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TTL"`
}

// AMQPConfig points at the broker carrying push signals to devices.
// An empty URL runs the server with a no-op publisher.
type AMQPConfig struct {
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE" envDefault:"call_signals"`
}

// MediaConfig configures the audio/video session transport boundary.
type MediaConfig struct {
	TokenSecret   string        `env:"MEDIA_TOKEN_SECRET"`
	TokenTTL      time.Duration `env:"MEDIA_TOKEN_TTL" envDefault:"2h"`
	WebhookSecret string        `env:"MEDIA_WEBHOOK_SECRET"`
}

// SignalingConfig names the timing constants of incoming call delivery.
//
// FreshnessWindow: push events older than this are stale rings and are dropped.
// RingTimeout: an unanswered call is forced to MISSED after this long.
// PollInterval: polling backstop cadence while the app is foregrounded.
// DedupCapacity: bound on remembered processed/cancelled call ids per device.
type SignalingConfig struct {
	FreshnessWindow time.Duration `env:"PUSH_FRESHNESS_WINDOW" envDefault:"20s"`
	RingTimeout     time.Duration `env:"RING_TIMEOUT" envDefault:"45s"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`
	DedupCapacity   int           `env:"DEDUP_CAPACITY" envDefault:"256"`
	SweepSchedule   string        `env:"SWEEP_SCHEDULE" envDefault:"@every 5s"`
}

// BillingConfig controls how billable seconds become coins.
type BillingConfig struct {
	IncrementSeconds int           `env:"BILLING_INCREMENT_SECONDS" envDefault:"1"`
	EarnSharePercent int           `env:"EARN_SHARE_PERCENT" envDefault:"100"`
	SettleLockTTL    time.Duration `env:"SETTLE_LOCK_TTL" envDefault:"10s"`
	// ReceiverBusyTTL bounds the receiver engagement cap in case a release is lost.
	ReceiverBusyTTL time.Duration `env:"RECEIVER_BUSY_TTL" envDefault:"3h"`
}

// LoadEnvFile loads the file named by ENV_FILE (or .env when present) into the environment.
// A missing default .env is not an error.
func LoadEnvFile() error {
	envfile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envfile != "" {
		return godotenv.Load(envfile)
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

// Parse decodes environment variables into any tagged struct.
func Parse[T any]() (T, error) {
	var out T
	if err := env.Parse(&out); err != nil {
		return out, err
	}
	return out, nil
}

func Load() (Config, error) {
	if err := LoadEnvFile(); err != nil {
		return Config{}, fmt.Errorf("env file: %w", err)
	}
	c, err := Parse[Config]()
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills local-friendly defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.AMQP.URL == "" {
			errs = append(errs, errors.New("AMQP_URL is required in production"))
		}
		if c.Media.WebhookSecret == "" {
			errs = append(errs, errors.New("MEDIA_WEBHOOK_SECRET is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Media.TokenSecret == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("MEDIA_TOKEN_SECRET is required in production"))
		} else {
			c.Media.TokenSecret = c.Auth.JWTSecret
		}
	}
	if c.Media.TokenTTL <= 0 {
		c.Media.TokenTTL = 2 * time.Hour
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "call_signals"
	}

	errs = append(errs, c.Signaling.validate()...)
	errs = append(errs, c.Billing.validate()...)

	return joinErrors(errs)
}

func (s *SignalingConfig) validate() []error {
	var errs []error
	if s.FreshnessWindow <= 0 {
		s.FreshnessWindow = 20 * time.Second
	}
	if s.RingTimeout <= 0 {
		s.RingTimeout = 45 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 3 * time.Second
	}
	if s.DedupCapacity <= 0 {
		s.DedupCapacity = 256
	}
	if strings.TrimSpace(s.SweepSchedule) == "" {
		s.SweepSchedule = "@every 5s"
	}
	if s.PollInterval >= s.RingTimeout {
		errs = append(errs, errors.New("POLL_INTERVAL must be shorter than RING_TIMEOUT"))
	}
	return errs
}

func (b *BillingConfig) validate() []error {
	var errs []error
	if b.IncrementSeconds <= 0 {
		b.IncrementSeconds = 1
	}
	if b.EarnSharePercent < 0 || b.EarnSharePercent > 100 {
		errs = append(errs, fmt.Errorf("EARN_SHARE_PERCENT must be within 0..100, got %d", b.EarnSharePercent))
	}
	if b.SettleLockTTL <= 0 {
		b.SettleLockTTL = 10 * time.Second
	}
	if b.ReceiverBusyTTL <= 0 {
		b.ReceiverBusyTTL = 3 * time.Hour
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
