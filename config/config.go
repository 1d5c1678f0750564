// Package config provides YAML configuration parsing for the watcher.
//
// This package enables running the watcher as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	watch_url: https://example.com/resource
//	port: 8080
//	poll_interval: 30s
//	state_file: /var/lib/etagwatch/state.json
//
//	quotas:
//	  http_requests_per_minute: 30
//	  subscriber_connections: 10
//
//	email:
//	  host: smtp.example.com
//	  from: watcher@example.com
//	  username: ${SMTP_USER}
//	  password: ${SMTP_PASS}
//	  recipients:
//	    - ops@example.com
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval for production
// configs. This prevents accidental DoS of the watched resource with overly
// aggressive polling.
const minPollInterval = 1 * time.Second

// Config is the root configuration structure for the watcher.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// WatchURL is the resource whose validator token is watched. Required.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	WatchURL string `yaml:"watch_url"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the time between probe cycles.
	// Accepts duration strings like "30s", "1m", "500ms".
	// Defaults to 30s.
	PollInterval Duration `yaml:"poll_interval"`

	// RestartBackoff is the pause before the poll loop restarts after an
	// internal failure. Defaults to 30s.
	RestartBackoff Duration `yaml:"restart_backoff"`

	// ProbeTimeout bounds each probe request. Defaults to 8s.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// StateFile is where the last observed token is persisted.
	// Defaults to "etag-state.json".
	StateFile string `yaml:"state_file"`

	// SuppressInitialChange skips the notification for the very first token
	// the watcher observes. The token is persisted either way.
	SuppressInitialChange bool `yaml:"suppress_initial_change"`

	// HeartbeatInterval is how often live subscribers are pinged.
	// Defaults to 30s.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// Quotas bounds per-origin request and subscription rates.
	Quotas QuotaConfig `yaml:"quotas"`

	// Email configures SMTP notification delivery.
	Email EmailConfig `yaml:"email"`
}

// QuotaConfig bounds what a single origin address may do.
type QuotaConfig struct {
	// HTTPRequestsPerMinute caps plain HTTP requests per origin.
	// Defaults to 30.
	HTTPRequestsPerMinute int `yaml:"http_requests_per_minute"`

	// SubscriberConnections caps concurrent websocket subscriptions per
	// origin. Defaults to 10.
	SubscriberConnections int `yaml:"subscriber_connections"`

	// SubscriberMessagesPerMinute caps messages per subscriber before the
	// connection is closed. Defaults to 60.
	SubscriberMessagesPerMinute int `yaml:"subscriber_messages_per_minute"`

	// MaxMessageBytes caps the size of a single subscriber message.
	// Defaults to 512.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`
}

// EmailConfig configures SMTP notification delivery.
//
// Host, From, Username, and Password are required whenever Recipients is
// non-empty. All string fields support environment variable substitution,
// so credentials can stay out of the file:
//
//	username: ${SMTP_USER}
//	password: ${SMTP_PASS}
type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	From       string   `yaml:"from"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Recipients []string `yaml:"recipients"`
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
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
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

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the watch URL and email settings.
// Defaults are applied for everything but the watch URL, which is required.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(30 * time.Second)
	}
	if cfg.RestartBackoff == 0 {
		cfg.RestartBackoff = Duration(30 * time.Second)
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = Duration(8 * time.Second)
	}
	if cfg.StateFile == "" {
		cfg.StateFile = "etag-state.json"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = Duration(30 * time.Second)
	}
	if cfg.Quotas.HTTPRequestsPerMinute == 0 {
		cfg.Quotas.HTTPRequestsPerMinute = 30
	}
	if cfg.Quotas.SubscriberConnections == 0 {
		cfg.Quotas.SubscriberConnections = 10
	}
	if cfg.Quotas.SubscriberMessagesPerMinute == 0 {
		cfg.Quotas.SubscriberMessagesPerMinute = 60
	}
	if cfg.Quotas.MaxMessageBytes == 0 {
		cfg.Quotas.MaxMessageBytes = 512
	}
	if cfg.Email.Port == 0 {
		cfg.Email.Port = 587
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.WatchURL == "" {
		return fmt.Errorf("watch_url is required")
	}
	expanded, err := expandEnvVars(c.WatchURL)
	if err != nil {
		return fmt.Errorf("watch_url: %w", err)
	}
	c.WatchURL = expanded

	parsedURL, err := url.Parse(c.WatchURL)
	if err != nil {
		return fmt.Errorf("invalid watch_url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("watch_url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("watch_url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.RestartBackoff.Duration() <= 0 {
		return fmt.Errorf("restart_backoff must be positive, got %s", c.RestartBackoff.Duration())
	}
	if c.ProbeTimeout.Duration() <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout.Duration())
	}
	if c.HeartbeatInterval.Duration() <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval.Duration())
	}

	if c.Quotas.HTTPRequestsPerMinute < 0 {
		return fmt.Errorf("quotas.http_requests_per_minute cannot be negative, got %d", c.Quotas.HTTPRequestsPerMinute)
	}
	if c.Quotas.SubscriberConnections < 1 {
		return fmt.Errorf("quotas.subscriber_connections must be at least 1, got %d", c.Quotas.SubscriberConnections)
	}
	if c.Quotas.SubscriberMessagesPerMinute < 1 {
		return fmt.Errorf("quotas.subscriber_messages_per_minute must be at least 1, got %d", c.Quotas.SubscriberMessagesPerMinute)
	}
	if c.Quotas.MaxMessageBytes < 1 {
		return fmt.Errorf("quotas.max_message_bytes must be at least 1, got %d", c.Quotas.MaxMessageBytes)
	}

	for _, field := range []struct {
		name  string
		value *string
	}{
		{"email.host", &c.Email.Host},
		{"email.from", &c.Email.From},
		{"email.username", &c.Email.Username},
		{"email.password", &c.Email.Password},
	} {
		expanded, err := expandEnvVars(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	for i, rcpt := range c.Email.Recipients {
		expanded, err := expandEnvVars(rcpt)
		if err != nil {
			return fmt.Errorf("email.recipients[%d]: %w", i, err)
		}
		c.Email.Recipients[i] = expanded
	}

	// fail fast: recipients with no way to deliver is a config error
	if len(c.Email.Recipients) > 0 {
		if c.Email.Host == "" || c.Email.Username == "" || c.Email.Password == "" {
			return fmt.Errorf("email.recipients configured but host, username, or password is missing")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email.recipients configured but from address is missing")
		}
	}

	return nil
}
