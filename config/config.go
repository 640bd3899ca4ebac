// Package config holds the downloader settings: the IRC server and identity,
// the pack to fetch, retry and liveness tuning, and logging.
//
// Settings come from Default, are overlaid by a YAML file and finally by
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mahirashab/irc-client/limits"
	"github.com/mahirashab/irc-client/transport"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// AppDirectoryName is the per-user configuration directory name.
	AppDirectoryName = "xdccget"
	// DefaultPort is the plaintext IRC port.
	DefaultPort = 6667

	configFileName = "config.yaml"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full downloader configuration.
type Config struct {
	Server   string `yaml:"server"`
	Port     uint16 `yaml:"port"`
	Nick     string `yaml:"nick"`
	Username string `yaml:"username,omitempty"`
	Realname string `yaml:"realname,omitempty"`
	Password string `yaml:"password,omitempty"`

	Bot       string   `yaml:"bot"`
	Pack      int      `yaml:"pack"`
	Channels  []string `yaml:"channels,omitempty"`
	Directory string   `yaml:"directory"`

	Proxy *transport.ProxyConfig `yaml:"proxy,omitempty"`

	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
	MaxResends   int           `yaml:"max_resends"`
	SendInterval time.Duration `yaml:"send_interval"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`
	Quiet    bool   `yaml:"quiet"`
	NoColor  bool   `yaml:"no_color"`
}

// Default returns the stock configuration with a random nick.
func Default() *Config {
	return &Config{
		Port:         DefaultPort,
		Nick:         RandomNick(),
		Directory:    ".",
		MaxAttempts:  limits.MaxAttempts,
		RetryDelay:   limits.RetryDelay,
		PollInterval: limits.PollInterval,
		ReplyTimeout: limits.ReplyTimeout,
		MaxResends:   limits.MaxRequestResends,
		SendInterval: 500 * time.Millisecond,
		LogLevel:     logrus.WarnLevel.String(),
	}
}

// RandomNick returns a nick unlikely to collide with anyone else's.
func RandomNick() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "xdcc" + id[:6]
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, AppDirectoryName, configFileName), nil
}

// Load reads path on top of Default.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "config.Load",
		"path":     path,
	}).Debug("Configuration loaded")

	return cfg, nil
}

// LoadOptional is Load that falls back to Default when path does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Address returns the server's host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(int(c.Port)))
}

// Level returns the parsed log level.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// Validate reports the first setting that would make a download impossible.
func (c *Config) Validate() error {
	switch {
	case c.Server == "":
		return fmt.Errorf("%w: server is required", ErrInvalid)
	case c.Port == 0:
		return fmt.Errorf("%w: port is required", ErrInvalid)
	case c.Nick == "" || strings.ContainsAny(c.Nick, " ,*?!@#:"):
		return fmt.Errorf("%w: nick %q", ErrInvalid, c.Nick)
	case c.Bot == "":
		return fmt.Errorf("%w: bot is required", ErrInvalid)
	case c.Pack <= 0:
		return fmt.Errorf("%w: pack number must be positive, got %d", ErrInvalid, c.Pack)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvalid)
	case c.MaxResends <= 0:
		return fmt.Errorf("%w: max_resends must be positive", ErrInvalid)
	case c.RetryDelay < 0 || c.PollInterval <= 0 || c.ReplyTimeout <= 0 || c.SendInterval < 0:
		return fmt.Errorf("%w: durations must be positive", ErrInvalid)
	}

	for _, ch := range c.Channels {
		if !strings.HasPrefix(ch, "#") && !strings.HasPrefix(ch, "&") {
			return fmt.Errorf("%w: channel %q", ErrInvalid, ch)
		}
	}

	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.Proxy != nil && c.Proxy.Type != "" {
		if _, err := transport.NewDialer(c.Proxy, transport.DefaultDialTimeout); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	return nil
}
