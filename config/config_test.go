package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIni(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "oneshot.ini")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// isolate points the XDG lookup at empty directories.
func isolate(t *testing.T) string {
	t.Helper()
	t.Cleanup(xdg.Reload)
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("XDG_CONFIG_DIRS", t.TempDir())
	t.Setenv(EnvPort, "")
	t.Setenv(EnvAddress, "")
	xdg.Reload()
	return home
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1", cfg.Address)
	assert.Equal(t, 5300, cfg.Port)
	assert.Equal(t, 512, cfg.BufferSize)
	assert.True(t, cfg.Continuous)
	assert.Equal(t, "info", cfg.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	isolate(t)
	path := writeIni(t, t.TempDir(), `
[server]
address = 127.0.0.2
port = 6000
buffer_size = 1024
continuous = false

[log]
level = debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.2", cfg.Address)
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.False(t, cfg.Continuous)
	assert.Equal(t, "debug", cfg.Level)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	isolate(t)
	path := writeIni(t, t.TempDir(), "[server]\nport = 7000\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Address)
	assert.Equal(t, 512, cfg.BufferSize)
	assert.True(t, cfg.Continuous)
}

func TestLoadMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	assert.Error(t, err)
}

func TestLoadLocatesXDGFile(t *testing.T) {
	home := isolate(t)
	writeIni(t, filepath.Join(home, "oneshot"), "[server]\nport = 8000\n")

	path, err := Locate()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, RelPath), path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	path := writeIni(t, t.TempDir(), "[server]\nport = 7000\naddress = 127.0.0.2\n")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvAddress, "127.0.0.3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "127.0.0.3", cfg.Address)
}

func TestLoadBadEnvPort(t *testing.T) {
	isolate(t)
	t.Setenv(EnvPort, "http")

	_, err := Load("")
	assert.ErrorContains(t, err, EnvPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero port", mutate: func(c *Config) { c.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Port = 70000 }},
		{name: "zero buffer", mutate: func(c *Config) { c.BufferSize = 0 }},
		{name: "bad address", mutate: func(c *Config) { c.Address = "localhost" }},
		{name: "ipv6 address", mutate: func(c *Config) { c.Address = "::1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
