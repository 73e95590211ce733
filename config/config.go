// Package config loads the skkserv TOML configuration.
package config

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Zereker/skkserv/converter"
)

// DefaultPort is the conventional skkserv port.
const DefaultPort = 1178

// Config is the server configuration.
type Config struct {
	Listen          string          `toml:"listen"`
	IdleTimeout     time.Duration   `toml:"idle_timeout"`
	MaxRequestSize  int             `toml:"max_request_size"`
	ShutdownTimeout time.Duration   `toml:"shutdown_timeout"`
	LogLevel        string          `toml:"log_level"`
	Converter       ConverterConfig `toml:"converter"`
}

// ConverterConfig configures the conversion service.
type ConverterConfig struct {
	Formats       []string      `toml:"formats"`
	CacheTTL      time.Duration `toml:"cache_ttl"`
	CacheCapacity uint64        `toml:"cache_capacity"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:         net.JoinHostPort("0.0.0.0", strconv.Itoa(DefaultPort)),
		IdleTimeout:    10 * time.Minute,
		MaxRequestSize: 4096,
		LogLevel:       "info",
		Converter: ConverterConfig{
			Formats:       append([]string(nil), converter.DefaultFormats...),
			CacheTTL:      converter.DefaultCacheTTL,
			CacheCapacity: converter.DefaultCacheCapacity,
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "config parse failed (%s)", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// LoadIfExists is Load, except that a missing file yields the defaults.
func LoadIfExists(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the configuration for values the server cannot use.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.Wrapf(err, "invalid listen address %q", c.Listen)
	}
	if c.IdleTimeout < 0 {
		return errors.Errorf("idle_timeout must not be negative: %s", c.IdleTimeout)
	}
	if c.MaxRequestSize <= 0 {
		return errors.Errorf("max_request_size must be positive: %d", c.MaxRequestSize)
	}
	if c.ShutdownTimeout < 0 {
		return errors.Errorf("shutdown_timeout must not be negative: %s", c.ShutdownTimeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, f := range c.Converter.Formats {
		if strings.TrimSpace(f) == "" {
			return errors.New("converter.formats must not contain empty layouts")
		}
	}
	return nil
}

// SetPort replaces the port of the listen address.
func (c *Config) SetPort(port int) error {
	host, _, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return errors.Wrapf(err, "invalid listen address %q", c.Listen)
	}
	if port < 0 || port > 65535 {
		return errors.Errorf("port out of range: %d", port)
	}
	c.Listen = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}

// ParseLevel converts a log level name to a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Errorf("unknown log level %q", raw)
	}
}
