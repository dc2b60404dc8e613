package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissing marks a required setting that was not provided.
var ErrMissing = errors.New("missing required setting")

// FlexibleString accepts both "123" and 123 in JSON, since chat user ids are
// numeric but configured as strings.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = FlexibleString(n.String())
	return nil
}

type Config struct {
	Operator     OperatorConfig `json:"operator"`
	Telegram     TelegramConfig `json:"telegram"`
	Gateway      GatewayConfig  `json:"gateway"`
	Store        StoreConfig    `json:"store"`
	Log          LogConfig      `json:"log"`
	Capabilities []string       `json:"capabilities" env:"PICOHUB_CAPABILITIES" envSeparator:","`
	Timezone     string         `json:"timezone" env:"PICOHUB_TIMEZONE"`
}

type OperatorConfig struct {
	ID                     FlexibleString `json:"id" env:"PICOHUB_OPERATOR_ID"`
	Password               string         `json:"password" env:"PICOHUB_OPERATOR_PASSWORD"`
	LoginAttemptsPerMinute int            `json:"login_attempts_per_minute" env:"PICOHUB_OPERATOR_LOGIN_ATTEMPTS_PER_MINUTE"`
}

type TelegramConfig struct {
	Token string `json:"token" env:"PICOHUB_TELEGRAM_TOKEN"`
	Proxy string `json:"proxy" env:"PICOHUB_TELEGRAM_PROXY"`
}

type GatewayConfig struct {
	Host       string `json:"host" env:"PICOHUB_GATEWAY_HOST"`
	Port       int    `json:"port" env:"PICOHUB_GATEWAY_PORT"`
	AgentToken string `json:"agent_token" env:"PICOHUB_GATEWAY_AGENT_TOKEN"`
}

type StoreConfig struct {
	Path string `json:"path" env:"PICOHUB_STORE_PATH"`
}

type LogConfig struct {
	Level string `json:"level" env:"PICOHUB_LOG_LEVEL"`
	File  string `json:"file" env:"PICOHUB_LOG_FILE"`
}

// Addr is the gateway listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// Location resolves Timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// LoadConfig applies, in order: defaults, the JSON file at path (if it
// exists), then PICOHUB_* environment variables. It does not validate.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	return cfg, nil
}

// Validate reports every setting that would stop the hub from starting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(string(c.Operator.ID)) == "" {
		errs = append(errs, fmt.Errorf("operator.id (PICOHUB_OPERATOR_ID): %w", ErrMissing))
	}
	if c.Operator.Password == "" {
		errs = append(errs, fmt.Errorf("operator.password (PICOHUB_OPERATOR_PASSWORD): %w", ErrMissing))
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token (PICOHUB_TELEGRAM_TOKEN): %w", ErrMissing))
	}
	if strings.TrimSpace(c.Gateway.AgentToken) == "" {
		errs = append(errs, fmt.Errorf("gateway.agent_token (PICOHUB_GATEWAY_AGENT_TOKEN): %w", ErrMissing))
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port: %d out of range", c.Gateway.Port))
	}
	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path: %w", ErrMissing))
	}
	for _, capability := range c.Capabilities {
		if capability == "" || capability == "info" || strings.ContainsAny(capability, " \t") {
			errs = append(errs, fmt.Errorf("capabilities: invalid name %q", capability))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}

// SaveConfig writes cfg as indented JSON, creating the parent directory.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
