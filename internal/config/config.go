// Package config handles loading and validating the lantern CLI configuration.
// Config is stored at ~/.lantern/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Gateway GatewayConfig `yaml:"gateway"`
	Upload  UploadConfig  `yaml:"upload"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig points at a Lantern server.
type ServerConfig struct {
	URI       string `yaml:"uri"`
	Encoding  string `yaml:"encoding"` // "json" or "cbor"
	UserAgent string `yaml:"userAgent,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// AuthConfig holds the stored credential.
type AuthConfig struct {
	Token string `yaml:"token,omitempty"`
	Email string `yaml:"email,omitempty"`
}

// GatewayConfig configures realtime connections.
type GatewayConfig struct {
	Compress     bool     `yaml:"compress"`
	Intents      []string `yaml:"intents,omitempty"`
	ReconnectMin string   `yaml:"reconnectMin"`
	ReconnectMax string   `yaml:"reconnectMax"`
}

// UploadConfig configures file uploads.
type UploadConfig struct {
	ChunkSize int `yaml:"chunkSize"`
}

// JournalConfig configures the local event journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// LogConfig configures file logging.
type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
	Dir   string `yaml:"dir,omitempty"`
}

// MetricsConfig configures the Prometheus listener used by long-running
// commands. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URI:      "http://localhost:3030",
			Encoding: "json",
			Timeout:  "60s",
		},
		Gateway: GatewayConfig{
			Compress:     true,
			ReconnectMin: "1s",
			ReconnectMax: "1m",
		},
		Upload: UploadConfig{
			ChunkSize: 8 << 20,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the lantern config directory (~/.lantern).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lantern"
	}
	return filepath.Join(home, ".lantern")
}

// ConfigPath returns the path to the config file. LANTERN_CONFIG overrides it.
func ConfigPath() string {
	if p := os.Getenv("LANTERN_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// JournalPath returns the journal database path.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(ConfigDir(), "journal.db")
}

// LogDir returns the log directory.
func (c *Config) LogDir() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// Load reads and parses the config from disk.
// If the config file doesn't exist, it returns defaults.
func Load() (*Config, error) {
	cfg := Default()
	path := ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk. The file holds a token, so it is only
// readable by the owner.
func Save(cfg *Config) error {
	path := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := marshalConfigYAML(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.URI) == "" {
		errs = append(errs, errors.New("server.uri is required"))
	}
	switch strings.ToLower(c.Server.Encoding) {
	case "", "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("server.encoding %q must be json or cbor", c.Server.Encoding))
	}
	for name, v := range map[string]string{
		"server.timeout":       c.Server.Timeout,
		"gateway.reconnectMin": c.Gateway.ReconnectMin,
		"gateway.reconnectMax": c.Gateway.ReconnectMax,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Upload.ChunkSize < 0 {
		errs = append(errs, errors.New("upload.chunkSize must not be negative"))
	}
	return errors.Join(errs...)
}

// Duration parses a duration field, falling back when empty or invalid.
func Duration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// applyEnvOverrides merges environment variables into configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LANTERN_URI"); v != "" {
		cfg.Server.URI = v
	}
	if v := os.Getenv("LANTERN_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("LANTERN_ENCODING"); v != "" {
		cfg.Server.Encoding = v
	}
}

func marshalConfigYAML(cfg *Config) ([]byte, error) {
	return yaml.MarshalWithOptions(cfg, yaml.Indent(2))
}
