// Package config resolves tenderctl settings from built-in defaults, an
// optional YAML file and TENDER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
	"k8s.io/client-go/util/homedir"
)

const (
	DefaultAPIURL         = "http://localhost:8000"
	defaultHTTPTimeout    = 30 * time.Second
	defaultPollInterval   = 3 * time.Second
	defaultGlobalInterval = 5 * time.Second
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0
	defaultJitter         = 0.5
	defaultMaxRetries     = 10
)

// Config holds every tunable of the client.
type Config struct {
	APIURL         string        `yaml:"api_url,omitempty" env:"TENDER_API_URL"`
	HTTPTimeout    time.Duration `yaml:"http_timeout,omitempty" env:"TENDER_HTTP_TIMEOUT"`
	PollInterval   time.Duration `yaml:"poll_interval,omitempty" env:"TENDER_POLL_INTERVAL"`
	GlobalInterval time.Duration `yaml:"global_poll_interval,omitempty" env:"TENDER_GLOBAL_POLL_INTERVAL"`
	Stream         StreamConfig  `yaml:"stream,omitempty" envPrefix:"TENDER_STREAM_"`
	LogLevel       string        `yaml:"log_level,omitempty" env:"TENDER_LOG_LEVEL"`
	Output         string        `yaml:"output,omitempty" env:"TENDER_OUTPUT"`
}

// StreamConfig controls the reconnect policy of the event stream.
type StreamConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty" env:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty" env:"MAX_BACKOFF"`
	Multiplier     float64       `yaml:"multiplier,omitempty" env:"MULTIPLIER"`
	Jitter         float64       `yaml:"jitter,omitempty" env:"JITTER"`
	// MaxRetries bounds consecutive failed reconnects. Zero means unbounded.
	MaxRetries int `yaml:"max_retries,omitempty" env:"MAX_RETRIES"`
}

// DefaultConfig returns a Config with sensible defaults for a local backend.
func DefaultConfig() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		HTTPTimeout:    defaultHTTPTimeout,
		PollInterval:   defaultPollInterval,
		GlobalInterval: defaultGlobalInterval,
		Stream: StreamConfig{
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     defaultMaxBackoff,
			Multiplier:     defaultMultiplier,
			Jitter:         defaultJitter,
			MaxRetries:     defaultMaxRetries,
		},
		LogLevel: "warn",
		Output:   "human",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.APIURL != "" {
		c.APIURL = source.APIURL
	}
	if source.HTTPTimeout > 0 {
		c.HTTPTimeout = source.HTTPTimeout
	}
	if source.PollInterval > 0 {
		c.PollInterval = source.PollInterval
	}
	if source.GlobalInterval > 0 {
		c.GlobalInterval = source.GlobalInterval
	}
	c.Stream.Merge(&source.Stream)
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.Output != "" {
		c.Output = source.Output
	}
}

// Merge applies non-zero values from source into s. LoadFile handles an
// explicit zero jitter or max_retries separately.
func (s *StreamConfig) Merge(source *StreamConfig) {
	if source.InitialBackoff > 0 {
		s.InitialBackoff = source.InitialBackoff
	}
	if source.MaxBackoff > 0 {
		s.MaxBackoff = source.MaxBackoff
	}
	if source.Multiplier > 0 {
		s.Multiplier = source.Multiplier
	}
	if source.Jitter > 0 {
		s.Jitter = source.Jitter
	}
	if source.MaxRetries > 0 {
		s.MaxRetries = source.MaxRetries
	}
}

// DefaultPath returns ~/.tenderctl/config.yaml, or "" when no home directory
// is known.
func DefaultPath() string {
	home := homedir.HomeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".tenderctl", "config.yaml")
}

// LoadFile reads a YAML config file and merges it over c. A missing file is
// not an error when optional is true.
func (c *Config) LoadFile(path string, optional bool) error {
	if strings.HasPrefix(path, "~/") {
		if home := homedir.HomeDir(); home != "" {
			path = filepath.Join(home, path[2:])
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	// Zero is meaningful for these two, so presence decides instead of value.
	var explicit struct {
		Stream struct {
			Jitter     *float64 `yaml:"jitter"`
			MaxRetries *int     `yaml:"max_retries"`
		} `yaml:"stream"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	c.Merge(&loaded)
	if explicit.Stream.Jitter != nil {
		c.Stream.Jitter = *explicit.Stream.Jitter
	}
	if explicit.Stream.MaxRetries != nil {
		c.Stream.MaxRetries = *explicit.Stream.MaxRetries
	}
	return nil
}

// ApplyEnv overlays TENDER_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load resolves defaults, the file at path (optional when it is the default
// path) and the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	optional := false
	if path == "" {
		path = DefaultPath()
		optional = true
	}
	if path != "" {
		if err := cfg.LoadFile(path, optional); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the resolved configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api url %q", c.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api url %q: scheme must be http or https", c.APIURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.PollInterval <= 0 || c.GlobalInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.Stream.InitialBackoff <= 0 || c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		return fmt.Errorf("stream backoff must satisfy 0 < initial <= max")
	}
	if c.Stream.Jitter < 0 || c.Stream.Jitter > 1 {
		return fmt.Errorf("stream jitter must be between 0 and 1")
	}
	if c.Stream.MaxRetries < 0 {
		return fmt.Errorf("stream max retries must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Output {
	case "human", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format: %s (supported: human, json, yaml)", c.Output)
	}
	return nil
}

// ParseLogLevel maps debug/info/warn/error to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level: %s (supported: debug, info, warn, error)", s)
	}
}
