// Package config loads server settings from an optional YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"popreveal/internal/round"
)

// EnvConfigPath names the variable holding the config file path.
const EnvConfigPath = "POPREVEAL_CONFIG"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the whole server configuration.
type Config struct {
	Server   Server       `yaml:"server"`
	Log      Log          `yaml:"log"`
	Round    round.Config `yaml:"round"`
	Themes   Themes       `yaml:"themes"`
	Feedback Feedback     `yaml:"feedback"`
	Sessions Sessions     `yaml:"sessions"`
}

type Server struct {
	Port              string        `yaml:"port"`
	BaseURL           string        `yaml:"base_url"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type Log struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// Themes points at an optional directory of theme files replacing the
// built-in ones.
type Themes struct {
	Dir     string `yaml:"dir"`
	Default string `yaml:"default"`
}

// Feedback configures the end-of-round message service. An empty endpoint
// uses the canned messages.
type Feedback struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"-"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Sessions struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			ReadHeaderTimeout: 5 * time.Second,
			RequestTimeout:    15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log:      Log{Level: "info", Encoding: "json"},
		Round:    round.DefaultConfig(),
		Themes:   Themes{Default: round.DefaultTheme.ID},
		Feedback: Feedback{Timeout: 5 * time.Second},
		Sessions: Sessions{IdleTimeout: 30 * time.Minute, SweepInterval: time.Minute},
	}
}

// Load reads path when it is not empty, then applies environment overrides
// from getenv, then validates.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by POPREVEAL_CONFIG, if any, with overrides
// from the process environment.
func FromEnv() (Config, error) {
	return Load(strings.TrimSpace(os.Getenv(EnvConfigPath)), os.Getenv)
}

// Decode merges YAML onto cfg. Unknown keys are errors.
func Decode(b []byte, cfg *Config) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Server.BaseURL, "BASE_URL")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Feedback.Endpoint, "FEEDBACK_ENDPOINT")
	set(&c.Feedback.APIKey, "FEEDBACK_API_KEY")
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Server.Port, ":")
}

// Validate reports the first setting the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server.port is empty", ErrInvalid)
	}
	if c.Server.RequestTimeout <= 0 || c.Server.ShutdownTimeout <= 0 || c.Server.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("%w: server timeouts must be positive", ErrInvalid)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.encoding %q", ErrInvalid, c.Log.Encoding)
	}
	if c.Feedback.Endpoint != "" && !strings.HasPrefix(c.Feedback.Endpoint, "http://") &&
		!strings.HasPrefix(c.Feedback.Endpoint, "https://") {
		return fmt.Errorf("%w: feedback.endpoint must be an http(s) URL", ErrInvalid)
	}
	if c.Feedback.Timeout <= 0 {
		return fmt.Errorf("%w: feedback.timeout must be positive", ErrInvalid)
	}
	if c.Sessions.IdleTimeout < 0 || c.Sessions.SweepInterval < 0 {
		return fmt.Errorf("%w: session intervals must not be negative", ErrInvalid)
	}
	if err := c.Round.Validate(); err != nil {
		return fmt.Errorf("%w: round: %w", ErrInvalid, err)
	}
	return nil
}
