package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = "127.0.0.1:9000"
ping_interval = "500ms"

[log]
level = "debug"
format = "json"

[manifest]
bucket = "schemas"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.PingInterval != 500*time.Millisecond {
		t.Errorf("Server.PingInterval = %v; want 500ms", cfg.Server.PingInterval)
	}
	if cfg.Server.ReadTimeout != Default().Server.ReadTimeout {
		t.Errorf("Server.ReadTimeout = %v; want default", cfg.Server.ReadTimeout)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Manifest.Bucket != "schemas" || cfg.Manifest.Key != Default().Manifest.Key {
		t.Errorf("Manifest = %+v", cfg.Manifest)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q; want %q", cfg.Path(), path)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[server]
adr = ":1"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "server.adr") {
		t.Fatalf("Load() error = %v; want unknown key server.adr", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	if _, err := Load(missing); err == nil {
		t.Error("Load(missing) error = nil")
	}
	cfg, err := LoadOptional(missing)
	if err != nil {
		t.Fatalf("LoadOptional(missing) error = %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q; want empty", cfg.Path())
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAddr:         " :7000 ",
		EnvLogLevel:     "WARN",
		EnvLogFormat:    "json",
		EnvPingInterval: "1s",
		EnvS3Bucket:     "bucket",
		EnvS3Region:     "eu-west-1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Server.Addr = %q; want :7000", cfg.Server.Addr)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Server.PingInterval != time.Second {
		t.Errorf("Server.PingInterval = %v; want 1s", cfg.Server.PingInterval)
	}
	if cfg.Manifest.Bucket != "bucket" || cfg.Manifest.Region != "eu-west-1" {
		t.Errorf("Manifest = %+v", cfg.Manifest)
	}

	env[EnvPingInterval] = "soon"
	if err := Default().ApplyEnv(lookup); err == nil {
		t.Error("ApplyEnv(bad duration) error = nil")
	}
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv(EnvAddr, ":6000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":6000" {
		t.Errorf("Server.Addr = %q; want :6000", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "server.read_timeout"},
		{"zero ping", func(c *Config) { c.Server.PingInterval = 0 }, "server.ping_interval"},
		{"ping after read timeout", func(c *Config) { c.Server.PingInterval = time.Minute }, "shorter than"},
		{"zero message size", func(c *Config) { c.Server.MaxMessageSize = 0 }, "server.max_message_size"},
		{"long ids", func(c *Config) { c.Server.ConnectionIDLength = 17 }, "connection_id_length"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"no namespace", func(c *Config) { c.Metrics.Namespace = "" }, "metrics.namespace"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() error = %v; want mention of %q", err, tc.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "code", "m")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"code":"m"`) {
		t.Errorf("json output = %s", out)
	}

	if _, err := NewLogger(LogConfig{Level: "info", Format: "xml"}, &buf); err == nil {
		t.Error("NewLogger(xml) error = nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
