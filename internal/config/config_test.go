package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 8787 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.AuthTimeout() != 10*time.Second {
		t.Errorf("auth timeout = %v", cfg.Gateway.AuthTimeout())
	}
	if cfg.Gateway.HeartbeatInterval() != 30*time.Second {
		t.Errorf("heartbeat = %v", cfg.Gateway.HeartbeatInterval())
	}
}

func TestLoad_JSON5(t *testing.T) {
	path := writeFile(t, "devlink.json5", `{
		// comments and trailing commas are fine
		gateway: { port: 9000, commands_per_minute: 120, },
		auth: { jwt_secret: "s3cret" },
		log: { level: "DEBUG" },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9000 || cfg.Gateway.CommandsPerMinute != 120 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
	// Unset values keep defaults.
	if cfg.Gateway.SendBuffer != 256 {
		t.Errorf("send buffer = %d", cfg.Gateway.SendBuffer)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "devlink.yaml", "gateway:\n  port: 7000\n  heartbeat_sec: 5\npresence:\n  redis_url: redis://localhost:6379/0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 7000 || cfg.Gateway.HeartbeatSec != 5 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Presence.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis = %q", cfg.Presence.RedisURL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "devlink.json5", `{auth: {jwt_secret: "from-file"}}`)
	t.Setenv("DEVLINK_JWT_SECRET", "from-env")
	t.Setenv("DEVLINK_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Gateway.Port != 9100 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad json5", "c.json5", `{gateway: `},
		{"bad port", "c.json5", `{gateway: {port: 70000}}`},
		{"bad level", "c.json5", `{log: {level: "loud"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.file, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNormalizeDeviceClass(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultDeviceClass},
		{"   ", DefaultDeviceClass},
		{"desktop", "desktop"},
		{"Mobile", "mobile"},
		{"Mac OS", "mac-os"},
		{"--weird!!", "weird"},
		{"!!!", DefaultDeviceClass},
	}
	for _, tt := range tests {
		if got := NormalizeDeviceClass(tt.in); got != tt.want {
			t.Errorf("NormalizeDeviceClass(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
