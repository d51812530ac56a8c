package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("LANTERN_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LANTERN_URI", "")
	t.Setenv("LANTERN_TOKEN", "")
	t.Setenv("LANTERN_ENCODING", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Setenv("LANTERN_CONFIG", path)
	t.Setenv("LANTERN_URI", "")
	t.Setenv("LANTERN_TOKEN", "")
	t.Setenv("LANTERN_ENCODING", "")

	cfg := Default()
	cfg.Server.URI = "https://chat.example.com"
	cfg.Server.Encoding = "cbor"
	cfg.Auth.Token = "secret"
	cfg.Gateway.Intents = []string{"messages", "presence"}
	require.NoError(t, Save(cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  uri: http://file.example.com\n"), 0o600))
	t.Setenv("LANTERN_CONFIG", path)
	t.Setenv("LANTERN_URI", "http://env.example.com")
	t.Setenv("LANTERN_TOKEN", "tok")
	t.Setenv("LANTERN_ENCODING", "cbor")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com", cfg.Server.URI)
	assert.Equal(t, "tok", cfg.Auth.Token)
	assert.Equal(t, "cbor", cfg.Server.Encoding)
	assert.Equal(t, "1s", cfg.Gateway.ReconnectMin)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"no_uri", func(c *Config) { c.Server.URI = " " }, false},
		{"bad_encoding", func(c *Config) { c.Server.Encoding = "xml" }, false},
		{"bad_duration", func(c *Config) { c.Gateway.ReconnectMax = "soon" }, false},
		{"negative_chunk", func(c *Config) { c.Upload.ChunkSize = -1 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("5s", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("nope", time.Second))
	assert.Equal(t, time.Second, Duration("-3s", time.Second))
}

func TestCacheReloadsAfterTTL(t *testing.T) {
	first := Default()
	c := NewCache(first, 30*time.Millisecond)

	second := Default()
	second.Auth.Token = "rotated"
	c.load = func() (*Config, error) { return second, nil }

	assert.Same(t, first, c.Get())
	assert.Eventually(t, func() bool { return c.Get() == second }, time.Second, 5*time.Millisecond)
}

func TestCacheReload(t *testing.T) {
	first := Default()
	c := NewCache(first, time.Hour)

	c.load = func() (*Config, error) { return nil, errors.New("broken yaml") }
	got, err := c.Reload()
	assert.Error(t, err)
	assert.Same(t, first, got)

	second := Default()
	c.load = func() (*Config, error) { return second, nil }
	got, err = c.Reload()
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Same(t, second, c.Get())
}
