// Package config loads the gatekeeper service configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/gatekeeper/credential"
)

// EnvVar names the environment variable consulted when no --config flag
// is given.
const EnvVar = "GATEKEEPER_CONFIG"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// Listen is the address the HTTPS server binds.
	Listen string `yaml:"listen"`

	TLS TLSConfig `yaml:"tls"`

	// Service is the permission service the API's own routes use.
	Service string `yaml:"service"`

	// AuditDB is the bbolt file holding the audit trail. Empty keeps the
	// trail in memory.
	AuditDB string `yaml:"audit_db"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Session SessionConfig `yaml:"session"`

	APIKey TokenConfig `yaml:"api_key"`

	Password credential.HasherConfig `yaml:"password"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// TrustedProxies are CIDR ranges whose forwarding headers are honored
	// when resolving client IPs.
	TrustedProxies []string `yaml:"trusted_proxies"`

	AuditRetention RetentionConfig `yaml:"audit_retention"`

	AuditWebhook WebhookConfig `yaml:"audit_webhook"`

	BootstrapAdmin BootstrapConfig `yaml:"bootstrap_admin"`

	InternalAPI InternalAPIConfig `yaml:"internal_api"`

	// DefaultPermissions are granted to every new user.
	DefaultPermissions map[string][]string `yaml:"default_permissions"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type SessionConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	AbsoluteTimeout time.Duration `yaml:"absolute_timeout"`
	ClockSkew       time.Duration `yaml:"clock_skew"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	TokenConfig     `yaml:",inline"`
}

// TokenConfig describes how bearer tokens are minted.
type TokenConfig struct {
	SecretBytes int `yaml:"secret_bytes"`
	// KeyHash is identity, sha256 or blake3.
	KeyHash string `yaml:"key_hash"`
}

// RateLimitConfig bounds unauthenticated traffic per client IP.
type RateLimitConfig struct {
	// RequestsPerMinute applies to login and registration. Zero disables it.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// RetentionConfig bounds the audit trail. Zero disables a bound.
type RetentionConfig struct {
	MaxAge     time.Duration `yaml:"max_age"`
	MaxEntries int           `yaml:"max_entries"`
}

// BootstrapConfig names an administrator created or promoted at startup.
// The password is read from a file so it stays out of the config.
type BootstrapConfig struct {
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
}

// InternalAPIConfig enables the routes other services use to check
// credentials remotely. An empty TokenFile disables them.
type InternalAPIConfig struct {
	TokenFile string `yaml:"token_file"`
}

// WebhookConfig forwards audit events to an external collector. An empty
// URL disables it.
type WebhookConfig struct {
	URL string `yaml:"url"`
	// Header is sent with every delivery, as "Name: value".
	Header string `yaml:"header"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:   ":8443",
		Service:  "cam",
		LogLevel: "info",
		Session: SessionConfig{
			IdleTimeout:     credential.DefaultSessionIdleTimeout,
			AbsoluteTimeout: credential.DefaultSessionAbsoluteTimeout,
			SweepInterval:   credential.DefaultSweepInterval,
			TokenConfig: TokenConfig{
				SecretBytes: credential.DefaultSessionSecretLen,
				KeyHash:     "identity",
			},
		},
		APIKey: TokenConfig{
			SecretBytes: credential.DefaultAPIKeySecretLen,
			KeyHash:     "sha256",
		},
		Password:           credential.DefaultHasherConfig(),
		RateLimit:          RateLimitConfig{RequestsPerMinute: 30},
		DefaultPermissions: credential.DefaultPermissions().Map(),
	}
}

// Load reads path, or the file named by GATEKEEPER_CONFIG when path is
// empty. With neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	return LoadFile(path)
}

// LoadFile reads a YAML file over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// yaml.v3 merges into existing maps; a configured set replaces the default.
	cfg.DefaultPermissions = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DefaultPermissions == nil {
		cfg.DefaultPermissions = Default().DefaultPermissions
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}
	if c.Service == "" {
		errs = append(errs, errors.New("service must not be empty"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Session.IdleTimeout <= 0 || c.Session.AbsoluteTimeout <= 0 {
		errs = append(errs, errors.New("session timeouts must be positive"))
	}
	if c.Session.ClockSkew < 0 {
		errs = append(errs, errors.New("session.clock_skew must not be negative"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	for name, tc := range map[string]TokenConfig{"session": c.Session.TokenConfig, "api_key": c.APIKey} {
		if tc.SecretBytes < credential.MinSecretLen {
			errs = append(errs, fmt.Errorf("%s.secret_bytes must be at least %d", name, credential.MinSecretLen))
		}
		if _, err := credential.KeyHashByName(tc.KeyHash); err != nil {
			errs = append(errs, fmt.Errorf("%s.key_hash: %w", name, err))
		}
	}
	if err := c.Password.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("password: %w", err))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must not be negative"))
	}
	if c.AuditRetention.MaxAge < 0 || c.AuditRetention.MaxEntries < 0 {
		errs = append(errs, errors.New("audit_retention bounds must not be negative"))
	}
	if (c.BootstrapAdmin.Username == "") != (c.BootstrapAdmin.PasswordFile == "") {
		errs = append(errs, errors.New("bootstrap_admin.username and bootstrap_admin.password_file must be set together"))
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.AuditWebhook.URL != "" {
		if u, err := url.Parse(c.AuditWebhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("audit_webhook.url: %q is not an http(s) URL", c.AuditWebhook.URL))
		}
	}
	if h := c.AuditWebhook.Header; h != "" && !strings.Contains(h, ":") {
		errs = append(errs, errors.New(`audit_webhook.header must be "Name: value"`))
	}
	for service, names := range c.DefaultPermissions {
		if service == "" || strings.Contains(service, ":") {
			errs = append(errs, fmt.Errorf("default_permissions: bad service %q", service))
		}
		for _, n := range names {
			if n == "" {
				errs = append(errs, fmt.Errorf("default_permissions.%s: empty permission", service))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ProxyPrefixes parses TrustedProxies. A bare address is treated as a
// single-host prefix.
func (c *Config) ProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted_proxies: %w", err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted_proxies: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// BootstrapPassword reads the bootstrap administrator's password file,
// trimming a trailing newline.
func (c *Config) BootstrapPassword() (string, error) {
	return readSecretFile("bootstrap_admin.password_file", c.BootstrapAdmin.PasswordFile)
}

// InternalToken reads the internal API token file. It returns "" when no
// file is configured.
func (c *Config) InternalToken() (string, error) {
	if c.InternalAPI.TokenFile == "" {
		return "", nil
	}
	return readSecretFile("internal_api.token_file", c.InternalAPI.TokenFile)
}

func readSecretFile(key, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("%s: %w: empty secret", key, ErrInvalid)
	}
	return secret, nil
}

// Permissions returns the default permission set.
func (c *Config) Permissions() credential.Permissions {
	return credential.PermissionsFromMap(c.DefaultPermissions)
}

// StoreOptions converts the configuration into credential.Store options.
func (c *Config) StoreOptions() ([]credential.Option, error) {
	hasher, err := credential.NewKDFHasher(c.Password)
	if err != nil {
		return nil, err
	}
	sessionCodec, err := tokenCodec(c.Session.TokenConfig)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	apiKeyCodec, err := tokenCodec(c.APIKey)
	if err != nil {
		return nil, fmt.Errorf("api_key: %w", err)
	}
	return []credential.Option{
		credential.WithPasswordHasher(hasher),
		credential.WithSessionCodec(sessionCodec),
		credential.WithAPIKeyCodec(apiKeyCodec),
		credential.WithSessionIdleTimeout(c.Session.IdleTimeout),
		credential.WithSessionAbsoluteTimeout(c.Session.AbsoluteTimeout),
		credential.WithClockSkew(c.Session.ClockSkew),
		credential.WithSweepInterval(c.Session.SweepInterval),
		credential.WithDefaultPermissions(c.Permissions()),
	}, nil
}

func tokenCodec(tc TokenConfig) (*credential.TokenCodec, error) {
	hash, err := credential.KeyHashByName(tc.KeyHash)
	if err != nil {
		return nil, err
	}
	return credential.NewTokenCodec(tc.SecretBytes, hash)
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
