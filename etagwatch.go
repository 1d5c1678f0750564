package etagwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jpalmerr/etagwatch/internal/hub"
	"github.com/jpalmerr/etagwatch/internal/notify"
	"github.com/jpalmerr/etagwatch/internal/poller"
	"github.com/jpalmerr/etagwatch/internal/ratelimit"
	"github.com/jpalmerr/etagwatch/internal/server"
	"github.com/jpalmerr/etagwatch/internal/state"
	"github.com/jpalmerr/etagwatch/internal/status"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultRestartBackoff = 30 * time.Second
	defaultProbeTimeout   = 8 * time.Second
	defaultPort           = 8080
	defaultStateFile      = "etag-state.json"

	defaultHTTPRequestLimit = 30
	defaultHTTPWindow       = time.Minute
	defaultMaxSubscribers   = 10
	defaultMessageLimit     = 60
	defaultMessageWindow    = time.Minute
	defaultMaxMessageBytes  = 512
	defaultHeartbeat        = 30 * time.Second

	// quotaSweepInterval is how often expired rate-limit windows are evicted.
	quotaSweepInterval = 5 * time.Minute

	// hubShutdownGrace is how long subscribers get to acknowledge a close.
	hubShutdownGrace = 3 * time.Second
)

// Watcher polls a single HTTP resource for validator-token changes and fans
// notifications out to email, live websocket subscribers, and callbacks.
//
// Watcher is created with [New] and started with [Watcher.Start]. The typical
// lifecycle is:
//
//	w, err := etagwatch.New("https://example.com/resource")
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown.
type Watcher struct {
	watchURL        string
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

// New creates a new [Watcher] for the given URL with the given options.
//
// The URL is required and must be http or https. Other settings have
// defaults:
//   - Poll interval: 30 seconds
//   - Restart backoff: 30 seconds
//   - Probe timeout: 8 seconds
//   - Port: 8080
//   - State file: etag-state.json
//
// Returns an error if the URL is invalid, any option is invalid, or email
// recipients are configured without SMTP credentials.
func New(watchURL string, opts ...Option) (*Watcher, error) {
	cfg := &ewConfig{
		port:             defaultPort,
		pollInterval:     defaultPollInterval,
		restartBackoff:   defaultRestartBackoff,
		probeTimeout:     defaultProbeTimeout,
		stateFile:        defaultStateFile,
		httpRequestLimit: defaultHTTPRequestLimit,
		httpWindow:       defaultHTTPWindow,
		maxSubscribers:   defaultMaxSubscribers,
		messageLimit:     defaultMessageLimit,
		messageWindow:    defaultMessageWindow,
		maxMessageBytes:  defaultMaxMessageBytes,
		heartbeat:        defaultHeartbeat,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if watchURL == "" {
		return nil, errors.New("watch URL is required")
	}
	parsed, err := url.Parse(watchURL)
	if err != nil {
		return nil, fmt.Errorf("invalid watch URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("watch URL scheme must be http or https, got %q", parsed.Scheme)
	}

	// a notification target with no way to deliver is a config error, not a
	// runtime surprise on the first change
	if len(cfg.email.Recipients) > 0 {
		if cfg.email.Host == "" || cfg.email.Username == "" || cfg.email.Password == "" {
			return nil, errors.New("email recipients configured but SMTP host, username, or password is missing")
		}
		if cfg.email.From == "" {
			return nil, errors.New("email recipients configured but sender address is missing")
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		watchURL:         watchURL,
		port:             cfg.port,
		pollInterval:     cfg.pollInterval,
		restartBackoff:   cfg.restartBackoff,
		probeTimeout:     cfg.probeTimeout,
		stateFile:        cfg.stateFile,
		suppressInitial:  cfg.suppressInitial,
		httpRequestLimit: cfg.httpRequestLimit,
		httpWindow:       cfg.httpWindow,
		maxSubscribers:   cfg.maxSubscribers,
		messageLimit:     cfg.messageLimit,
		messageWindow:    cfg.messageWindow,
		maxMessageBytes:  cfg.maxMessageBytes,
		heartbeat:        cfg.heartbeat,
		email:            cfg.email,
		callbacks:        cfg.callbacks,
		logger:           logger,
	}, nil
}

// Start begins polling the watched resource and serving the HTTP surface.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - The resource is probed immediately, then at the configured interval
//   - The HTTP server starts on the configured port (/health, /ws)
//   - Token changes and failures are fanned out to every configured channel
//
// The caller controls the lifecycle via context cancellation. For signal
// handling, use [signal.NotifyContext]:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//	w.Start(ctx)
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("watcher starting", "url", w.watchURL)
	w.logger.Info("polling configured",
		"interval", w.pollInterval.String(),
		"probe_timeout", w.probeTimeout.String(),
	)
	w.logger.Info("server configured", "url", fmt.Sprintf("http://localhost:%d", w.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	board := status.NewBoard()
	store := state.NewFileStore(w.stateFile)
	limiter := ratelimit.New(w.httpRequestLimit, w.maxSubscribers, w.httpWindow, w.logger)

	h := hub.New(hub.Config{
		HeartbeatInterval: w.heartbeat,
		MessageLimit:      w.messageLimit,
		MessageWindow:     w.messageWindow,
		MaxMessageBytes:   w.maxMessageBytes,
	}, board, limiter, w.logger)

	// the broadcast hub is itself a notification channel; email and
	// callbacks join it when configured
	channels := []notify.Channel{h}
	if len(w.email.Recipients) > 0 {
		channels = append(channels, notify.NewEmailChannel(notify.EmailConfig{
			Host:       w.email.Host,
			Port:       w.email.Port,
			From:       w.email.From,
			Username:   w.email.Username,
			Password:   w.email.Password,
			Recipients: w.email.Recipients,
		}, w.logger))
	}
	for _, cb := range w.callbacks {
		fn := cb
		channels = append(channels, notify.NewCallbackChannel(func(ev status.Event) {
			fn(publicEvent(ev))
		}, w.logger))
	}
	notifier := notify.New(channels, w.logger)

	p := poller.New(poller.Config{
		URL:             w.watchURL,
		Timeout:         w.probeTimeout,
		SuppressInitial: w.suppressInitial,
	}, store, board, notifier, w.logger)
	supervisor := poller.NewSupervisor(p, board, notifier, w.pollInterval, w.restartBackoff, w.logger)

	httpServer := server.New(board, limiter, h, w.port, w.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		notifier.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		limiter.Run(ctx, quotaSweepInterval)
	}()
	go func() {
		defer wg.Done()
		supervisor.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	h.Shutdown(hubShutdownGrace)
	w.logger.Info("watcher stopped")
	return nil
}

// URL returns the watched resource URL.
func (w *Watcher) URL() string {
	return w.watchURL
}

// Port returns the configured HTTP port.
func (w *Watcher) Port() int {
	return w.port
}

// PollInterval returns the configured interval between probe cycles.
func (w *Watcher) PollInterval() time.Duration {
	return w.pollInterval
}

// StateFile returns the path of the durable state record.
func (w *Watcher) StateFile() string {
	return w.stateFile
}
