// Package config provides YAML configuration parsing for monitorfeed.
//
// This package enables running monitorfeed as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 3333
//	namespace: vps-monitor
//	topic: monitor:update
//	require_auth: true
//	jwt_secret: ${JWT_SECRET}
//
//	store:
//	  backend: redis
//	  redis:
//	    addr: ${REDIS_HOST:-localhost}:${REDIS_PORT:-6379}
//	    password: ${REDIS_PASSWORD:-}
//
//	producer:
//	  enabled: true
//	  monitors:
//	    - id: api
//	      url: https://api.example.com/health
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Parse].
const (
	DefaultPort           = 3333
	DefaultPath           = "/ws/monitors"
	DefaultNamespace      = "vps-monitor"
	DefaultTopic          = "monitor:update"
	DefaultFrames         = "envelope"
	DefaultStoreTimeout   = 2 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultBackend        = BackendRedis
	DefaultRedisAddr      = "localhost:6379"
	DefaultInterval       = 15 * time.Second
	DefaultMaxConcurrency = 10
	DefaultProbeTimeout   = 10 * time.Second
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// minTimeout is the smallest store or write timeout accepted.
const minTimeout = 100 * time.Millisecond

// Config is the root configuration structure for monitorfeed.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 3333.
	Port int `yaml:"port"`

	// WSPath is the WebSocket endpoint. Defaults to "/ws/monitors".
	WSPath string `yaml:"ws_path"`

	// Namespace prefixes every snapshot key: "<namespace>:<monitorId>".
	Namespace string `yaml:"namespace"`

	// Topic is the pub/sub channel announcing changed monitor IDs.
	Topic string `yaml:"topic"`

	// Frames is "envelope" (typed frames) or "legacy" (bare documents).
	Frames string `yaml:"frames"`

	// StoreTimeout bounds each snapshot read. Defaults to 2s.
	StoreTimeout Duration `yaml:"store_timeout"`

	// WriteTimeout bounds each frame write to a client. Defaults to 5s.
	WriteTimeout Duration `yaml:"write_timeout"`

	// RequireAuth gates streaming and status endpoints behind a JWT.
	RequireAuth bool `yaml:"require_auth"`

	// JWTSecret is the HS256 signing secret. Required when RequireAuth is set.
	// Supports environment variable substitution.
	JWTSecret string `yaml:"jwt_secret"`

	// AllowedOrigins restricts WebSocket upgrades by Origin. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Store    StoreConfig    `yaml:"store"`
	Producer ProducerConfig `yaml:"producer"`
}

// StoreConfig selects and configures the snapshot/pub-sub backend.
type StoreConfig struct {
	// Backend is "redis" or "memory". Defaults to "redis".
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis backend. All string
// fields support environment variable substitution.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProducerConfig configures the optional built-in producer.
type ProducerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval is the time between probes. Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`

	// MaxConcurrency caps simultaneous probes. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency"`

	Monitors []MonitorConfig `yaml:"monitors"`
}

// MonitorConfig defines one HTTP target of the producer.
type MonitorConfig struct {
	// ID names the monitor and its snapshot key.
	ID string `yaml:"id"`

	// URL is the probed URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with each probe. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Interval overrides producer.interval for this monitor.
	// Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates.
//
// Environment variables are expanded in jwt_secret, the redis settings,
// monitor URLs and monitor header values.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.WSPath == "" {
		c.WSPath = DefaultPath
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Frames == "" {
		c.Frames = DefaultFrames
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = Duration(DefaultStoreTimeout)
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultBackend
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = DefaultRedisAddr
	}
	if c.Producer.Interval == 0 {
		c.Producer.Interval = Duration(DefaultInterval)
	}
	if c.Producer.MaxConcurrency == 0 {
		c.Producer.MaxConcurrency = DefaultMaxConcurrency
	}
	for i := range c.Producer.Monitors {
		if c.Producer.Monitors[i].Timeout == 0 {
			c.Producer.Monitors[i].Timeout = Duration(DefaultProbeTimeout)
		}
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("ws_path must start with '/', got %q", c.WSPath)
	}
	if err := validateName("namespace", c.Namespace); err != nil {
		return err
	}
	if err := validateName("topic", c.Topic); err != nil {
		return err
	}
	if c.Frames != "envelope" && c.Frames != "legacy" {
		return fmt.Errorf("frames must be envelope or legacy, got %q", c.Frames)
	}
	if d := c.StoreTimeout.Duration(); d < minTimeout {
		return fmt.Errorf("store_timeout must be at least %s, got %s", minTimeout, d)
	}
	if d := c.WriteTimeout.Duration(); d < minTimeout {
		return fmt.Errorf("write_timeout must be at least %s, got %s", minTimeout, d)
	}

	secret, err := expandEnvVars(c.JWTSecret)
	if err != nil {
		return fmt.Errorf("jwt_secret: %w", err)
	}
	c.JWTSecret = secret
	if c.RequireAuth && c.JWTSecret == "" {
		return errors.New("require_auth is set but jwt_secret is empty")
	}

	if err := c.Store.expandAndValidate(); err != nil {
		return err
	}
	return c.Producer.expandAndValidate()
}

func validateName(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	if strings.ContainsAny(v, " \t\r\n") {
		return fmt.Errorf("%s must not contain whitespace, got %q", field, v)
	}
	return nil
}

func (s *StoreConfig) expandAndValidate() error {
	switch s.Backend {
	case BackendRedis:
	case BackendMemory:
		return nil
	default:
		return fmt.Errorf("store.backend must be redis or memory, got %q", s.Backend)
	}

	for _, f := range []struct {
		name string
		v    *string
	}{
		{"addr", &s.Redis.Addr},
		{"username", &s.Redis.Username},
		{"password", &s.Redis.Password},
	} {
		expanded, err := expandEnvVars(*f.v)
		if err != nil {
			return fmt.Errorf("store.redis.%s: %w", f.name, err)
		}
		*f.v = expanded
	}

	if s.Redis.Addr == "" {
		return errors.New("store.redis.addr is required")
	}
	if s.Redis.DB < 0 {
		return fmt.Errorf("store.redis.db cannot be negative, got %d", s.Redis.DB)
	}
	return nil
}

func (p *ProducerConfig) expandAndValidate() error {
	if !p.Enabled {
		return nil
	}

	if err := validateInterval("producer.interval", p.Interval); err != nil {
		return err
	}
	if p.MaxConcurrency < 1 {
		return fmt.Errorf("producer.max_concurrency must be at least 1, got %d", p.MaxConcurrency)
	}
	if len(p.Monitors) == 0 {
		return errors.New("producer is enabled but no monitors are defined")
	}

	seen := make(map[string]struct{}, len(p.Monitors))
	for i := range p.Monitors {
		m := &p.Monitors[i]

		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("monitors[%d]: id is required", i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("monitors[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = struct{}{}

		if m.URL == "" {
			return fmt.Errorf("monitors[%d] (%s): url is required", i, m.ID)
		}
		expanded, err := expandEnvVars(m.URL)
		if err != nil {
			return fmt.Errorf("monitors[%d] (%s): url: %w", i, m.ID, err)
		}
		m.URL = expanded

		parsedURL, err := url.Parse(m.URL)
		if err != nil {
			return fmt.Errorf("monitors[%d] (%s): invalid url: %w", i, m.ID, err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("monitors[%d] (%s): url scheme must be http or https, got %q", i, m.ID, parsedURL.Scheme)
		}

		for k, v := range m.Headers {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("monitors[%d] (%s): headers[%s]: %w", i, m.ID, k, err)
			}
			m.Headers[k] = expanded
		}

		if m.Method != "" && m.Method != "GET" && m.Method != "HEAD" && m.Method != "POST" {
			return fmt.Errorf("monitors[%d] (%s): method must be GET, HEAD, or POST", i, m.ID)
		}

		if m.Timeout.Duration() < minTimeout {
			return fmt.Errorf("monitors[%d] (%s): timeout must be at least %s, got %s",
				i, m.ID, minTimeout, m.Timeout.Duration())
		}

		if m.Interval != 0 {
			if err := validateInterval(fmt.Sprintf("monitors[%d] (%s): interval", i, m.ID), m.Interval); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateInterval(field string, d Duration) error {
	if d.Duration() < time.Second {
		return fmt.Errorf("%s must be at least 1s, got %s", field, d.Duration())
	}
	if d.Duration() > time.Hour {
		return fmt.Errorf("%s must not exceed 1h, got %s", field, d.Duration())
	}
	return nil
}
