package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts       = 5
	DefaultInitialBackoff    = 30 * time.Second
	DefaultMaxBackoff        = time.Hour
	DefaultRequestTimeout    = 10 * time.Second
	DefaultResponseBodyLimit = 4096
	DefaultSignatureHeader   = HeaderSignature
	DefaultUserAgent         = "go-hooks/1"
	DefaultSweepBatchSize    = 100
)

type DeliveryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	RequestTimeout    time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	ResponseBodyLimit int           `koanf:"response_body_limit" mapstructure:"response_body_limit"`
	SignatureHeader   string        `koanf:"signature_header" mapstructure:"signature_header"`
	UserAgent         string        `koanf:"user_agent" mapstructure:"user_agent"`
}

type DispatchConfig struct {
	AllowUnknownEvents bool `koanf:"allow_unknown_events" mapstructure:"allow_unknown_events"`
	SweepBatchSize     int  `koanf:"sweep_batch_size" mapstructure:"sweep_batch_size"`
}

type HooksConfig struct {
	DefaultPriority int `koanf:"default_priority" mapstructure:"default_priority"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Delivery    DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
	Hooks       HooksConfig    `koanf:"hooks" mapstructure:"hooks"`
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		RequestTimeout:    DefaultRequestTimeout,
		ResponseBodyLimit: DefaultResponseBodyLimit,
		SignatureHeader:   DefaultSignatureHeader,
		UserAgent:         DefaultUserAgent,
	}
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "hooks",
		Delivery:    DefaultDeliveryConfig(),
		Dispatch: DispatchConfig{
			SweepBatchSize: DefaultSweepBatchSize,
		},
		Hooks: HooksConfig{
			DefaultPriority: DefaultHookPriority,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	return c.Delivery.Validate()
}

func (c DeliveryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("core: delivery max_attempts must be positive")
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("core: delivery backoff must not be negative")
	}
	if c.InitialBackoff > 0 && c.MaxBackoff > 0 && c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("core: delivery max_backoff must be >= initial_backoff")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("core: delivery request_timeout must not be negative")
	}
	if c.ResponseBodyLimit < 0 {
		return fmt.Errorf("core: delivery response_body_limit must not be negative")
	}
	return nil
}

// withDefaults fills zero values so partially configured components behave.
func (c DeliveryConfig) withDefaults() DeliveryConfig {
	defaults := DefaultDeliveryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.ResponseBodyLimit <= 0 {
		c.ResponseBodyLimit = defaults.ResponseBodyLimit
	}
	if strings.TrimSpace(c.SignatureHeader) == "" {
		c.SignatureHeader = defaults.SignatureHeader
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaults.UserAgent
	}
	return c
}
