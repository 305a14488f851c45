// Package config resolves runtime settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"iurynex-aura/internal/app"
	"iurynex-aura/internal/chat"
	"iurynex-aura/internal/live"

	"gopkg.in/yaml.v3"
)

var ErrMissingAPIKey = errors.New("API_KEY (or GEMINI_API_KEY) is not set")

type Config struct {
	APIKey            string   `yaml:"api_key"`
	ChatModel         string   `yaml:"chat_model"`
	LiveModel         string   `yaml:"live_model"`
	Voice             string   `yaml:"voice"`
	LiveBaseURL       string   `yaml:"live_base_url"`
	ScheduleURL       string   `yaml:"schedule_url"`
	CaptureDeviceRate uint32   `yaml:"capture_device_rate"`
	WebPort           int      `yaml:"web_port"`
	WebTLS            bool     `yaml:"web_tls"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	LogLevel          string   `yaml:"log_level"`
}

func Default() Config {
	return Config{
		ChatModel:   chat.DefaultModel,
		LiveModel:   live.DefaultModel,
		Voice:       live.DefaultVoice,
		LiveBaseURL: live.DefaultBaseURL,
		ScheduleURL: app.DefaultScheduleURL,
		WebPort:     8443,
		LogLevel:    "info",
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment on top.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&c.APIKey, "API_KEY", "GEMINI_API_KEY")
	setString(&c.ChatModel, "AURA_CHAT_MODEL")
	setString(&c.LiveModel, "AURA_LIVE_MODEL")
	setString(&c.Voice, "AURA_VOICE")
	setString(&c.LiveBaseURL, "AURA_LIVE_URL")
	setString(&c.ScheduleURL, "AURA_SCHEDULE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("AURA_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = getListFromString(v)
	}
	if v := os.Getenv("AURA_CAPTURE_RATE"); v != "" {
		rate, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("AURA_CAPTURE_RATE: %w", err)
		}
		c.CaptureDeviceRate = uint32(rate)
	}
	if v := os.Getenv("WEB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEB_PORT: %w", err)
		}
		c.WebPort = port
	}
	if v := os.Getenv("WEB_TLS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WEB_TLS: %w", err)
		}
		c.WebTLS = on
	}
	return nil
}

func getListFromString(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		errs = append(errs, fmt.Errorf("web_port %d out of range", c.WebPort))
	}
	if c.CaptureDeviceRate != 0 && (c.CaptureDeviceRate < 8000 || c.CaptureDeviceRate > 192000) {
		errs = append(errs, fmt.Errorf("capture_device_rate %d out of range", c.CaptureDeviceRate))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if !strings.HasPrefix(c.LiveBaseURL, "ws://") && !strings.HasPrefix(c.LiveBaseURL, "wss://") {
		errs = append(errs, fmt.Errorf("live_base_url must be a ws:// or wss:// URL, got %q", c.LiveBaseURL))
	}
	return errors.Join(errs...)
}
