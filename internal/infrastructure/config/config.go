package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/outdial/outdial/internal/domain/errors"
)

// Supported telephony providers.
const (
	ProviderFreeswitch = "freeswitch"
	ProviderAsterisk   = "asterisk"
)

type Config struct {
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Telephony TelephonyConfig `koanf:"telephony"`
	Engine    EngineConfig    `koanf:"engine"`
	Webhooks  WebhooksConfig  `koanf:"webhooks"`
	CRM       CRMConfig       `koanf:"crm"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int           `koanf:"max_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type TelephonyConfig struct {
	Provider   string           `koanf:"provider" validate:"oneof=freeswitch asterisk"`
	Freeswitch FreeswitchConfig `koanf:"freeswitch"`
	Asterisk   AsteriskConfig   `koanf:"asterisk"`
}

type FreeswitchConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	Gateway  string `koanf:"gateway"`
	CallerID string `koanf:"caller_id"`
}

type AsteriskConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Context  string `koanf:"context"`
	CallerID string `koanf:"caller_id"`
}

type EngineConfig struct {
	StuckCallTimeout time.Duration `koanf:"stuck_call_timeout" validate:"gt=0"`
	StuckRetryDelay  time.Duration `koanf:"stuck_retry_delay" validate:"gt=0"`
	MaxBatchSize     int           `koanf:"max_batch_size" validate:"gt=0"`
}

type WebhooksConfig struct {
	PollInterval  time.Duration `koanf:"poll_interval" validate:"gt=0"`
	BaseDelay     time.Duration `koanf:"base_delay" validate:"gt=0"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gt=0"`
}

type CRMConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Source  string        `koanf:"source"`
	Timeout time.Duration `koanf:"timeout"`
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/outdial?sslmode=disable",
			MaxConns:        10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Telephony: TelephonyConfig{
			Provider: ProviderFreeswitch,
			Freeswitch: FreeswitchConfig{
				Host:     "localhost",
				Port:     8021,
				Password: "ClueCon",
				Gateway:  "default",
			},
			Asterisk: AsteriskConfig{
				Port:    5038,
				Context: "outbound",
			},
		},
		Engine: EngineConfig{
			StuckCallTimeout: 10 * time.Minute,
			StuckRetryDelay:  5 * time.Minute,
			MaxBatchSize:     50,
		},
		Webhooks: WebhooksConfig{
			PollInterval:  5 * time.Second,
			BaseDelay:     2 * time.Second,
			RatePerSecond: 50,
		},
		CRM: CRMConfig{
			Source:  "outdial",
			Timeout: 15 * time.Second,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file and
// OUTDIAL_-prefixed environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, errors.NewConfigurationError("failed to load defaults").WithCause(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("failed to load config file %s", path)).WithCause(err)
		}
	}

	if err := k.Load(env.Provider("OUTDIAL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "OUTDIAL_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, errors.NewConfigurationError("failed to load environment").WithCause(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.NewConfigurationError("failed to unmarshal config").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural constraints plus the presence of the selected
// provider's connection parameters. Missing parameters are fatal at startup.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.NewConfigurationError("invalid configuration").WithCause(err)
	}

	switch c.Telephony.Provider {
	case ProviderFreeswitch:
		fs := c.Telephony.Freeswitch
		if fs.Host == "" || fs.Port == 0 || fs.Password == "" {
			return errors.NewConfigurationError("telephony.freeswitch requires host, port and password")
		}
	case ProviderAsterisk:
		ast := c.Telephony.Asterisk
		if ast.Host == "" || ast.Port == 0 || ast.Username == "" || ast.Password == "" {
			return errors.NewConfigurationError("telephony.asterisk requires host, port, username and password")
		}
	}
	return nil
}
