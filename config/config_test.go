package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "skkserv.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen != "0.0.0.0:1178" {
		t.Errorf("Listen = %q, want 0.0.0.0:1178", cfg.Listen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:11780"
idle_timeout = "30s"
max_request_size = 1024
log_level = "debug"

[converter]
formats = ["2006.01.02"]
cache_ttl = "5m"
cache_capacity = 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != "127.0.0.1:11780" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.IdleTimeout != 30*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.MaxRequestSize != 1024 {
		t.Errorf("MaxRequestSize = %d", cfg.MaxRequestSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if !reflect.DeepEqual(cfg.Converter.Formats, []string{"2006.01.02"}) {
		t.Errorf("Formats = %v", cfg.Converter.Formats)
	}
	if cfg.Converter.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.Converter.CacheTTL)
	}
	if cfg.Converter.CacheCapacity != 8 {
		t.Errorf("CacheCapacity = %d", cfg.Converter.CacheCapacity)
	}
	if cfg.ShutdownTimeout != 0 {
		t.Errorf("ShutdownTimeout = %v, want default 0", cfg.ShutdownTimeout)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, `port = 1178`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `listen = `},
		{"listen", `listen = "nope"`},
		{"max request size", `max_request_size = 0`},
		{"log level", `log_level = "loud"`},
		{"negative idle", `idle_timeout = "-1s"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadIfExists_Missing(t *testing.T) {
	cfg, err := LoadIfExists(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadIfExists failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Error("expected defaults for missing file")
	}
}

func TestSetPort(t *testing.T) {
	cfg := Default()

	if err := cfg.SetPort(2000); err != nil {
		t.Fatalf("SetPort failed: %v", err)
	}
	if cfg.Listen != "0.0.0.0:2000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if err := cfg.SetPort(70000); err == nil {
		t.Error("expected error for out of range port")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
