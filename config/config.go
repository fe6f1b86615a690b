package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"github.com/adrg/xdg"
	"gopkg.in/ini.v1"
)

// RelPath is where the config file is looked up under the XDG config directories.
const RelPath = "oneshot/oneshot.ini"

const (
	EnvPort    = "ONESHOT_PORT"
	EnvAddress = "ONESHOT_ADDRESS"
)

type ServerConf struct {
	Address    string `ini:"address"`
	Port       int    `ini:"port"`
	BufferSize int    `ini:"buffer_size"`
	Continuous bool   `ini:"continuous"`
}

type LogConf struct {
	Level string `ini:"level"`
}

type Config struct {
	ServerConf `ini:"server"`
	LogConf    `ini:"log"`
}

func Default() *Config {
	return &Config{
		ServerConf: ServerConf{
			Address:    "127.0.0.1",
			Port:       5300,
			BufferSize: 512,
			Continuous: true,
		},
		LogConf: LogConf{
			Level: "info",
		},
	}
}

// Locate returns the first oneshot.ini found in the XDG config directories.
func Locate() (string, error) {
	return xdg.SearchConfigFile(RelPath)
}

// Load reads the ini file at path over the defaults and applies the
// environment overrides. An empty path means Locate, and no file at all
// leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		found, err := Locate()
		if err == nil {
			path = found
		}
	}
	if path != "" {
		f, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := f.MapTo(cfg); err != nil {
			return nil, fmt.Errorf("map config %s: %w", path, err)
		}
	}

	overrideFromEnvString(&cfg.Address, EnvAddress)
	if err := overrideFromEnvInt(&cfg.Port, EnvPort); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid buffer_size %d", c.BufferSize)
	}
	addr, err := netip.ParseAddr(c.Address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", c.Address, err)
	}
	if !addr.Is4() {
		return fmt.Errorf("invalid address %q: only IPv4 is supported", c.Address)
	}
	return nil
}

func overrideFromEnvString(target *string, envName string) {
	if v := os.Getenv(envName); v != "" {
		*target = v
	}
}

func overrideFromEnvInt(target *int, envName string) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envName, err)
	}
	*target = n
	return nil
}
