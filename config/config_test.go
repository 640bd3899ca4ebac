package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mahirashab/irc-client/transport"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Server = "irc.example.net"
	cfg.Bot = "Bot"
	cfg.Pack = 7
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint16(DefaultPort), cfg.Port)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Len(t, cfg.Nick, 10)
	assert.NotEqual(t, cfg.Nick, Default().Nick)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server: irc.example.net
port: 6697
bot: Bot
pack: 12
channels: ["#xdcc", "#chat"]
retry_delay: 10s
proxy:
  type: socks5
  host: 127.0.0.1
  port: 9050
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.example.net:6697", cfg.Address())
	assert.Equal(t, 12, cfg.Pack)
	assert.Equal(t, []string{"#xdcc", "#chat"}, cfg.Channels)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.ReplyTimeout)
	require.NotNil(t, cfg.Proxy)
	assert.Equal(t, "127.0.0.1:9050", cfg.Proxy.Address())
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pack: [oops"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultPort), cfg.Port)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.Proxy = &transport.ProxyConfig{Type: "http", Host: "proxy.local", Port: 3128}

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing server", func(c *Config) { c.Server = "" }},
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"nick with space", func(c *Config) { c.Nick = "bad nick" }},
		{"missing bot", func(c *Config) { c.Bot = "" }},
		{"pack zero", func(c *Config) { c.Pack = 0 }},
		{"no attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"no resends", func(c *Config) { c.MaxResends = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"bad channel", func(c *Config) { c.Channels = []string{"xdcc"} }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad proxy", func(c *Config) { c.Proxy = &transport.ProxyConfig{Type: "ftp"} }},
	}

	require.NoError(t, validConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "debug"
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, level)
}
