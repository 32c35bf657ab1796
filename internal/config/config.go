// Package config loads the relay configuration from a JSON5 or YAML file,
// with environment overrides for secrets and deployment-specific values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Presence  PresenceConfig  `json:"presence" yaml:"presence"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Tailscale TailscaleConfig `json:"tailscale" yaml:"tailscale"`
}

// GatewayConfig controls the WebSocket listener.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	// AuthTimeoutSec bounds how long an unauthenticated connection may idle.
	AuthTimeoutSec int `json:"auth_timeout_sec" yaml:"auth_timeout_sec"`
	// HeartbeatSec is the presence probe interval.
	HeartbeatSec int `json:"heartbeat_sec" yaml:"heartbeat_sec"`
	// MaxMessageBytes caps a single inbound frame.
	MaxMessageBytes int64 `json:"max_message_bytes" yaml:"max_message_bytes"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `json:"send_buffer" yaml:"send_buffer"`
	// CommandsPerMinute limits command frames per device; 0 disables.
	CommandsPerMinute int `json:"commands_per_minute" yaml:"commands_per_minute"`
	CommandBurst      int `json:"command_burst" yaml:"command_burst"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `json:"issuer" yaml:"issuer"`
	CacheSize int    `json:"cache_size" yaml:"cache_size"`
	CacheTTL  int    `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
}

// DatabaseConfig selects the durable store.
type DatabaseConfig struct {
	PostgresDSN string `json:"postgres_dsn" yaml:"postgres_dsn"`
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path"`
}

// PresenceConfig configures the optional presence fan-out.
type PresenceConfig struct {
	RedisURL string `json:"redis_url" yaml:"redis_url"`
	Channel  string `json:"channel" yaml:"channel"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "text" or "json"
}

// TelemetryConfig configures OTLP trace export (built with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint" yaml:"endpoint"`
	Protocol    string            `json:"protocol" yaml:"protocol"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure" yaml:"insecure"`
	ServiceName string            `json:"service_name" yaml:"service_name"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
}

// TailscaleConfig configures the optional tailnet listener (built with -tags tsnet).
type TailscaleConfig struct {
	Hostname  string `json:"hostname" yaml:"hostname"`
	AuthKey   string `json:"auth_key" yaml:"auth_key"`
	StateDir  string `json:"state_dir" yaml:"state_dir"`
	Ephemeral bool   `json:"ephemeral" yaml:"ephemeral"`
	EnableTLS bool   `json:"enable_tls" yaml:"enable_tls"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:              "0.0.0.0",
			Port:              8787,
			AuthTimeoutSec:    10,
			HeartbeatSec:      30,
			MaxMessageBytes:   1 << 20,
			SendBuffer:        256,
			CommandsPerMinute: 0,
			CommandBurst:      20,
		},
		Auth: AuthConfig{
			CacheSize: 1024,
			CacheTTL:  300,
		},
		Database: DatabaseConfig{
			SQLitePath: "~/.devlink/devlink.db",
		},
		Presence: PresenceConfig{
			Channel: "devlink:presence",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "devlink",
		},
	}
}

// Load reads the config file at path (if it exists), then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() {
	envStr("DEVLINK_HOST", &c.Gateway.Host)
	envInt("DEVLINK_PORT", &c.Gateway.Port)
	envStr("DEVLINK_JWT_SECRET", &c.Auth.JWTSecret)
	envStr("DEVLINK_JWT_ISSUER", &c.Auth.Issuer)
	envStr("DEVLINK_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("DEVLINK_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("DEVLINK_REDIS_URL", &c.Presence.RedisURL)
	envStr("DEVLINK_LOG_LEVEL", &c.Log.Level)
	envStr("DEVLINK_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("DEVLINK_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
}

func (c *Config) normalize() {
	d := Default()
	if c.Gateway.AuthTimeoutSec <= 0 {
		c.Gateway.AuthTimeoutSec = d.Gateway.AuthTimeoutSec
	}
	if c.Gateway.HeartbeatSec <= 0 {
		c.Gateway.HeartbeatSec = d.Gateway.HeartbeatSec
	}
	if c.Gateway.MaxMessageBytes <= 0 {
		c.Gateway.MaxMessageBytes = d.Gateway.MaxMessageBytes
	}
	if c.Gateway.SendBuffer <= 0 {
		c.Gateway.SendBuffer = d.Gateway.SendBuffer
	}
	if c.Gateway.CommandBurst <= 0 {
		c.Gateway.CommandBurst = d.Gateway.CommandBurst
	}
	c.Database.SQLitePath = ExpandHome(c.Database.SQLitePath)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// AuthTimeout returns the unauthenticated-connection timeout.
func (g GatewayConfig) AuthTimeout() time.Duration {
	return time.Duration(g.AuthTimeoutSec) * time.Second
}

// HeartbeatInterval returns the presence probe interval.
func (g GatewayConfig) HeartbeatInterval() time.Duration {
	return time.Duration(g.HeartbeatSec) * time.Second
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
