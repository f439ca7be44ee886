package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AgentConfig configures one device agent process.
// The signaling timings share env names with the server so both sides agree.
type AgentConfig struct {
	Env         string        `env:"APP_ENV" envDefault:"local"`
	APIBaseURL  string        `env:"AGENT_API_BASE_URL"`
	AccessToken string        `env:"AGENT_ACCESS_TOKEN"`
	UserID      string        `env:"AGENT_USER_ID"`
	DeviceID    string        `env:"AGENT_DEVICE_ID"`
	HTTPTimeout time.Duration `env:"AGENT_HTTP_TIMEOUT" envDefault:"5s"`

	// FullScreenGranted mirrors the platform capability grant for full-screen ringing.
	FullScreenGranted bool `env:"AGENT_FULL_SCREEN_GRANTED" envDefault:"true"`
	// AutoAnswer joins presented calls immediately; used by headless test devices.
	AutoAnswer bool `env:"AGENT_AUTO_ANSWER" envDefault:"false"`
	// HangUpAfter ends an auto-answered call after this long.
	HangUpAfter time.Duration `env:"AGENT_HANGUP_AFTER" envDefault:"30s"`

	AMQP      AMQPConfig
	Signaling SignalingConfig
}

func LoadAgent() (AgentConfig, error) {
	if err := LoadEnvFile(); err != nil {
		return AgentConfig{}, fmt.Errorf("env file: %w", err)
	}
	c, err := Parse[AgentConfig]()
	if err != nil {
		return AgentConfig{}, err
	}
	if err := c.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return c, nil
}

func (c *AgentConfig) Validate() error {
	var errs []error
	if !isValidEnv(c.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.Env))
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		errs = append(errs, errors.New("AGENT_API_BASE_URL is required"))
	}
	if c.AccessToken == "" {
		errs = append(errs, errors.New("AGENT_ACCESS_TOKEN is required"))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("AGENT_USER_ID is required"))
	}
	if c.DeviceID == "" {
		c.DeviceID = c.UserID
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 5 * time.Second
	}
	if c.HangUpAfter <= 0 {
		c.HangUpAfter = 30 * time.Second
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "call_signals"
	}
	errs = append(errs, c.Signaling.validate()...)
	return joinErrors(errs)
}
