package etagwatch

import (
	"errors"
	"log/slog"
	"time"
)

// ewConfig holds mutable state during Watcher construction.
type ewConfig struct {
	port            int
	pollInterval    time.Duration
	restartBackoff  time.Duration
	probeTimeout    time.Duration
	stateFile       string
	suppressInitial bool

	httpRequestLimit int
	httpWindow       time.Duration
	maxSubscribers   int
	messageLimit     int
	messageWindow    time.Duration
	maxMessageBytes  int64
	heartbeat        time.Duration

	email     EmailSettings
	callbacks []func(Event)
	logger    *slog.Logger
}

// EmailSettings carries the SMTP configuration for email notifications.
//
// Host, From, Username, and Password are required whenever Recipients is
// non-empty; [New] rejects a configuration that names recipients without
// working credentials rather than failing on the first delivery.
type EmailSettings struct {
	// Host is the SMTP server hostname.
	Host string

	// Port is the SMTP server port. Defaults to 587.
	Port int

	// From is the sender address.
	From string

	// Username and Password authenticate against the SMTP server.
	Username string
	Password string

	// Recipients receive one message each per notification.
	Recipients []string
}

// Option is a function that configures a [Watcher] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*ewConfig) error

// WithPort sets the HTTP port for the watcher's server.
//
// The health endpoint and the websocket subscription endpoint will be
// available at http://localhost:<port>. Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *ewConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithPollInterval sets how often the watched resource is probed.
//
// Defaults to 30 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *ewConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithRestartBackoff sets how long the supervisor waits before restarting
// the poll loop after an internal failure.
//
// Defaults to 30 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithRestartBackoff(d time.Duration) Option {
	return func(cfg *ewConfig) error {
		if d <= 0 {
			return errors.New("restart backoff must be positive")
		}
		cfg.restartBackoff = d
		return nil
	}
}

// WithProbeTimeout bounds each probe request to the watched resource.
//
// A probe that exceeds the timeout is reported as a transient failure.
// Defaults to 8 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithProbeTimeout(d time.Duration) Option {
	return func(cfg *ewConfig) error {
		if d <= 0 {
			return errors.New("probe timeout must be positive")
		}
		cfg.probeTimeout = d
		return nil
	}
}

// WithStateFile sets the path of the durable state record.
//
// The last observed validator token is persisted here and survives process
// restarts, so a restart does not re-notify a token that was already seen.
// Defaults to "etag-state.json" in the working directory.
//
// Returns an error if the path is empty.
func WithStateFile(path string) Option {
	return func(cfg *ewConfig) error {
		if path == "" {
			return errors.New("state file path cannot be empty")
		}
		cfg.stateFile = path
		return nil
	}
}

// WithInitialChangeSuppressed skips the change notification for the very
// first token the watcher ever observes.
//
// By default the first observation is announced like any other change. With
// this option set, the token is still persisted but no notification goes
// out, which is useful when the watcher is pointed at a resource whose
// current state is already known.
func WithInitialChangeSuppressed() Option {
	return func(cfg *ewConfig) error {
		cfg.suppressInitial = true
		return nil
	}
}

// WithChangeCallback registers a function to be called on every notification
// event, both changes and failures.
//
// Multiple callbacks may be registered by calling WithChangeCallback multiple
// times; they execute in registration order.
//
// Callbacks are invoked from the notifier's dispatch goroutine. Panics within
// callbacks are recovered and logged with a correlation ID; they do not crash
// the watcher.
//
// Nil callbacks are silently ignored.
func WithChangeCallback(cb func(Event)) Option {
	return func(cfg *ewConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}

// WithEmailNotifications enables email delivery for change and failure
// notifications.
//
// One message is sent per recipient. Validation of the settings happens in
// [New]: recipients without credentials is a configuration error.
func WithEmailNotifications(settings EmailSettings) Option {
	return func(cfg *ewConfig) error {
		if settings.Port == 0 {
			settings.Port = 587
		}
		cfg.email = settings
		return nil
	}
}

// WithHTTPRequestQuota limits plain HTTP requests per origin address.
//
// Each origin may make at most limit requests per window; further requests
// are answered with 429. Defaults to 30 requests per minute.
//
// Returns an error if limit is negative or window is not positive.
func WithHTTPRequestQuota(limit int, window time.Duration) Option {
	return func(cfg *ewConfig) error {
		if limit < 0 {
			return errors.New("http request limit cannot be negative")
		}
		if window <= 0 {
			return errors.New("http request window must be positive")
		}
		cfg.httpRequestLimit = limit
		cfg.httpWindow = window
		return nil
	}
}

// WithSubscriberQuota bounds the live subscription service per origin
// address: at most maxConnections concurrent subscribers, each allowed
// messageLimit messages per messageWindow before the connection is closed.
//
// Defaults: 10 connections, 60 messages per minute.
//
// Returns an error if any value is not positive.
func WithSubscriberQuota(maxConnections, messageLimit int, messageWindow time.Duration) Option {
	return func(cfg *ewConfig) error {
		if maxConnections <= 0 {
			return errors.New("max subscriber connections must be positive")
		}
		if messageLimit <= 0 {
			return errors.New("subscriber message limit must be positive")
		}
		if messageWindow <= 0 {
			return errors.New("subscriber message window must be positive")
		}
		cfg.maxSubscribers = maxConnections
		cfg.messageLimit = messageLimit
		cfg.messageWindow = messageWindow
		return nil
	}
}

// WithMaxMessageBytes caps the size of a single subscriber message.
//
// A subscriber that sends a larger frame is disconnected. Defaults to 512
// bytes; a validator token query never legitimately approaches that.
//
// Returns an error if the value is not positive.
func WithMaxMessageBytes(n int64) Option {
	return func(cfg *ewConfig) error {
		if n <= 0 {
			return errors.New("max message bytes must be positive")
		}
		cfg.maxMessageBytes = n
		return nil
	}
}

// WithHeartbeatInterval sets how often each subscriber is pinged.
//
// A subscriber that misses two consecutive heartbeats is considered dead and
// reaped. Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(cfg *ewConfig) error {
		if d <= 0 {
			return errors.New("heartbeat interval must be positive")
		}
		cfg.heartbeat = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher instance.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *ewConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}
