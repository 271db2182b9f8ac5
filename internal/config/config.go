// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"wsbridge-go/internal/transform"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/wsbridge/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the bridge itself and never proxied.
var reservedRoutes = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Target   string `kong:"short='t',help='Target WebSocket URL (overrides config).',env='TARGET_URL'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Target     TargetConfig     `toml:"target"`
	Forwarding ForwardingConfig `toml:"forwarding"`
	Relay      RelayConfig      `toml:"relay"`
	Transform  TransformConfig  `toml:"transform"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds inbound listener settings.
type ServerConfig struct {
	Host        string          `toml:"host"`
	Port        int             `toml:"port"` // 0 means "use default" (8080)
	TLSCertFile string          `toml:"tls_cert_file"`
	TLSKeyFile  string          `toml:"tls_key_file"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// TargetConfig describes the server every upgrade is bridged to.
type TargetConfig struct {
	URL                     string          `toml:"url"`
	HandshakeTimeoutSeconds int             `toml:"handshake_timeout_seconds"`
	KeepAliveSeconds        int             `toml:"keepalive_seconds"`
	ChangeOrigin            bool            `toml:"change_origin"`
	TLS                     TargetTLSConfig `toml:"tls"`
}

// TargetTLSConfig holds TLS settings for the outbound leg.
type TargetTLSConfig struct {
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
}

// ForwardingConfig controls x-forwarded-* header injection.
type ForwardingConfig struct {
	Enabled bool `toml:"enabled"`
}

// RelayConfig holds message relay limits.
type RelayConfig struct {
	MaxMessageBytes int64 `toml:"max_message_bytes"`
}

// TransformConfig selects per-direction payload transforms.
type TransformConfig struct {
	Client TransformSpec `toml:"client"`
	Server TransformSpec `toml:"server"`
}

// TransformSpec names a registered transform and its parameters.
type TransformSpec struct {
	Name string `toml:"name"`
	From string `toml:"from"`
	To   string `toml:"to"`
}

// Spec converts the config entry into a transform.Spec.
func (s TransformSpec) Spec() transform.Spec {
	return transform.Spec{Name: s.Name, From: s.From, To: s.To}
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/wsbridge/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Target != "" {
		c.Target.URL = cli.Target
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	u, err := url.Parse(c.Target.URL)
	if err != nil {
		return fmt.Errorf("target.url is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("target.url scheme must be one of ws, wss, http, https; got %q", c.Target.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("target.url must include a host; got %q", c.Target.URL)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if c.Target.HandshakeTimeoutSeconds < 0 {
		return fmt.Errorf("target.handshake_timeout_seconds must be non-negative; got %d", c.Target.HandshakeTimeoutSeconds)
	}
	if c.Target.KeepAliveSeconds < 0 {
		return fmt.Errorf("target.keepalive_seconds must be non-negative; got %d", c.Target.KeepAliveSeconds)
	}
	if c.Relay.MaxMessageBytes < 0 {
		return fmt.Errorf("relay.max_message_bytes must be non-negative; got %d", c.Relay.MaxMessageBytes)
	}

	for dir, spec := range map[string]TransformSpec{"client": c.Transform.Client, "server": c.Transform.Server} {
		if _, err := transform.Build(spec.Spec()); err != nil {
			return fmt.Errorf("transform.%s: %w", dir, err)
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		if p == "/" {
			return fmt.Errorf("metrics.path %q would shadow every bridged route", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// TOML cannot distinguish an explicit 0 from an omitted key, so zero means unset.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Target.HandshakeTimeoutSeconds == 0 {
		c.Target.HandshakeTimeoutSeconds = 10
	}
	if c.Target.KeepAliveSeconds == 0 {
		c.Target.KeepAliveSeconds = 30
	}
	if c.Relay.MaxMessageBytes == 0 {
		c.Relay.MaxMessageBytes = 16 * 1024 * 1024 // 16 MB
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSEnabled reports whether the inbound listener serves TLS.
func (c *ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != ""
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
