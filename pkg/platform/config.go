// Package platform loads relay configuration and wires every component
// into a running service.
package platform

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentConfigVersion is the only supported config apiVersion.
const CurrentConfigVersion = "v1"

const minCookieSecretLen = 32

// Config holds the complete relay configuration.
type Config struct {
	APIVersion string          `yaml:"apiVersion"`
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Auth       AuthConfig      `yaml:"auth"`
	Tokens     TokensConfig    `yaml:"tokens"`
	Ingest     IngestConfig    `yaml:"ingest"`
	Broadcast  BroadcastConfig `yaml:"broadcast"`
	Audit      AuditConfig     `yaml:"audit"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Name              string        `yaml:"name"`
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	TLS               TLSConfig     `yaml:"tls"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DatabaseConfig configures PostgreSQL. An empty DSN selects in-memory
// stores.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     *bool         `yaml:"auto_migrate"`
}

// AuthConfig configures the authentication gate.
type AuthConfig struct {
	AdminSecret string           `yaml:"admin_secret"`
	Headers     HeadersConfig    `yaml:"headers"`
	Login       LoginConfig      `yaml:"login"`
	Upstream    UpstreamConfig   `yaml:"upstream"`
	AgentCache  AgentCacheConfig `yaml:"agent_cache"`
	Cookie      CookieConfig     `yaml:"cookie"`
}

// HeadersConfig renames the credential headers.
type HeadersConfig struct {
	Admin  string `yaml:"admin"`
	Bearer string `yaml:"bearer"`
	Share  string `yaml:"share"`
}

// LoginConfig configures password login.
type LoginConfig struct {
	PasswordHash string        `yaml:"password_hash"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Window       time.Duration `yaml:"window"`
}

// UpstreamConfig configures reverse-proxy pre-authentication.
type UpstreamConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Header         string   `yaml:"header"`
	Sentinel       string   `yaml:"sentinel"`
	UserHeader     string   `yaml:"user_header"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// AgentCacheConfig configures the bearer token cache. A revoked token keeps
// working for at most one refresh interval.
type AgentCacheConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// CookieConfig configures the browser session cookie.
type CookieConfig struct {
	Name            string        `yaml:"name"`
	Secret          string        `yaml:"secret"`
	Secure          bool          `yaml:"secure"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// TokensConfig configures ephemeral tokens.
type TokensConfig struct {
	ShareTTL            time.Duration `yaml:"share_ttl"`
	ShareCapacity       int           `yaml:"share_capacity"`
	GuestTTL            time.Duration `yaml:"guest_ttl"`
	GuestMaxTTL         time.Duration `yaml:"guest_max_ttl"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	RegistrationCodeTTL time.Duration `yaml:"registration_code_ttl"`
}

// IngestConfig configures session creation dedup.
type IngestConfig struct {
	DedupWindow   time.Duration `yaml:"dedup_window"`
	DedupWait     time.Duration `yaml:"dedup_wait"`
	DedupCapacity int           `yaml:"dedup_capacity"`
}

// BroadcastConfig configures the event hub and SSE streams.
type BroadcastConfig struct {
	Buffer    int           `yaml:"buffer"`
	Keepalive time.Duration `yaml:"keepalive"`
}

// AuditConfig configures the security audit trail.
type AuditConfig struct {
	// Retention is how long events are kept. Negative keeps them forever.
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// MemoryCapacity bounds the in-memory store used without a database.
	MemoryCapacity int `yaml:"memory_capacity"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file.
// The path comes from the command line, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes, expanding ${VAR} references and
// applying defaults.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentConfigVersion
	}
	if cfg.APIVersion != CurrentConfigVersion {
		return nil, fmt.Errorf("unsupported config apiVersion %q; supported versions: %s",
			cfg.APIVersion, CurrentConfigVersion)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "pipeline-relay"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 4 << 20
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.AutoMigrate == nil {
		on := true
		cfg.Database.AutoMigrate = &on
	}
	if cfg.Auth.Login.MaxAttempts == 0 {
		cfg.Auth.Login.MaxAttempts = 5
	}
	if cfg.Auth.Login.Window == 0 {
		cfg.Auth.Login.Window = 15 * time.Minute
	}
	if cfg.Auth.AgentCache.RefreshInterval == 0 {
		cfg.Auth.AgentCache.RefreshInterval = 5 * time.Minute
	}
	if cfg.Auth.Cookie.TTL == 0 {
		cfg.Auth.Cookie.TTL = 24 * time.Hour
	}
	if cfg.Auth.Cookie.CleanupInterval == 0 {
		cfg.Auth.Cookie.CleanupInterval = 10 * time.Minute
	}
	if cfg.Tokens.ShareTTL == 0 {
		cfg.Tokens.ShareTTL = 5 * time.Minute
	}
	if cfg.Tokens.ShareCapacity == 0 {
		cfg.Tokens.ShareCapacity = 1000
	}
	if cfg.Tokens.GuestTTL == 0 {
		cfg.Tokens.GuestTTL = 24 * time.Hour
	}
	if cfg.Tokens.GuestMaxTTL == 0 {
		cfg.Tokens.GuestMaxTTL = 168 * time.Hour
	}
	if cfg.Tokens.SweepInterval == 0 {
		cfg.Tokens.SweepInterval = 10 * time.Minute
	}
	if cfg.Tokens.RegistrationCodeTTL == 0 {
		cfg.Tokens.RegistrationCodeTTL = time.Hour
	}
	if cfg.Ingest.DedupWindow == 0 {
		cfg.Ingest.DedupWindow = 5 * time.Second
	}
	if cfg.Ingest.DedupWait == 0 {
		cfg.Ingest.DedupWait = 100 * time.Millisecond
	}
	if cfg.Ingest.DedupCapacity == 0 {
		cfg.Ingest.DedupCapacity = 10000
	}
	if cfg.Broadcast.Buffer == 0 {
		cfg.Broadcast.Buffer = 64
	}
	if cfg.Broadcast.Keepalive == 0 {
		cfg.Broadcast.Keepalive = 25 * time.Second
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = 90 * 24 * time.Hour
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Auth.Cookie.Secret) < minCookieSecretLen {
		errs = append(errs, fmt.Sprintf("auth.cookie.secret must be at least %d bytes", minCookieSecretLen))
	}
	if c.Auth.Upstream.Enabled && c.Auth.Upstream.Sentinel == "" {
		errs = append(errs, "auth.upstream.sentinel is required when upstream auth is enabled")
	}
	if c.Tokens.GuestTTL > c.Tokens.GuestMaxTTL {
		errs = append(errs, "tokens.guest_ttl must not exceed tokens.guest_max_ttl")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, "server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	if c.Audit.CleanupInterval < 0 {
		errs = append(errs, "audit.cleanup_interval must not be negative")
	}
	if c.Audit.MemoryCapacity < 0 {
		errs = append(errs, "audit.memory_capacity must not be negative")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Sprintf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Warnings returns non-fatal configuration problems worth logging.
func (c *Config) Warnings() []string {
	var out []string
	if c.Auth.AdminSecret == "" && c.Auth.Login.PasswordHash == "" && !c.Auth.Upstream.Enabled {
		out = append(out, "no admin credential configured; admin routes are unreachable")
	}
	if c.Database.DSN == "" {
		out = append(out, "database.dsn is empty; using in-memory stores, data is lost on restart")
	}
	if !c.Auth.Cookie.Secure {
		out = append(out, "auth.cookie.secure is false; session cookies are sent over plain HTTP")
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("logging.level %q is not a valid level", s)
	}
	return l, nil
}
