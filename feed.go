package monitorfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/monitorfeed/internal/auth"
	"github.com/jpalmerr/monitorfeed/internal/metrics"
	"github.com/jpalmerr/monitorfeed/internal/producer"
	"github.com/jpalmerr/monitorfeed/internal/server"
	"github.com/jpalmerr/monitorfeed/internal/session"
	"github.com/jpalmerr/monitorfeed/internal/snapshot"
	"github.com/jpalmerr/monitorfeed/internal/updates"
)

const (
	defaultPort            = 3333
	defaultNamespace       = "vps-monitor"
	defaultTopic           = "monitor:update"
	defaultStoreTimeout    = snapshot.DefaultTimeout
	defaultWriteTimeout    = server.DefaultWriteTimeout
	defaultPollingInterval = 15 * time.Second
	defaultMaxConcurrency  = 10
)

// ErrUpdatesLost is returned by [Feed.Start] when the update subscription
// ends while the feed is running, e.g. because the store connection dropped.
var ErrUpdatesLost = errors.New("update subscription ended")

// Feed broadcasts monitor snapshots and live updates to connected clients.
//
// A Feed is created with [New] and run with [Feed.Start]:
//
//	feed, err := monitorfeed.New(
//	    monitorfeed.WithRedis(monitorfeed.RedisOptions{Addr: "localhost:6379"}),
//	)
//	if err != nil {
//	    slog.Error("failed to create feed", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	feed.Start(ctx) // blocks until context cancelled
type Feed struct {
	openStore       func() (Store, bool, error)
	port            int
	path            string
	namespace       string
	topic           string
	frames          session.FrameMode
	storeTimeout    time.Duration
	writeTimeout    time.Duration
	authenticator   auth.Authenticator
	allowedOrigins  []string
	registerer      prometheus.Registerer
	logger          *slog.Logger
	monitors        []Monitor
	pollingInterval time.Duration
	maxConcurrency  int
	updateCallbacks []func(string)
}

// New creates a [Feed] with the given options.
//
// A backend must be configured with [WithStore], [WithRedis] or
// [WithMemoryStore]. Other options have defaults:
//   - Port: 3333
//   - Path: /ws/monitors
//   - Namespace: vps-monitor, topic: monitor:update
//   - Frames: envelope
//
// Returns an error if no backend is configured or any option is invalid.
func New(opts ...Option) (*Feed, error) {
	cfg := &feedConfig{
		port:            defaultPort,
		path:            server.DefaultPath,
		namespace:       defaultNamespace,
		topic:           defaultTopic,
		frames:          session.FramesEnvelope,
		storeTimeout:    defaultStoreTimeout,
		writeTimeout:    defaultWriteTimeout,
		pollingInterval: defaultPollingInterval,
		maxConcurrency:  defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.openStore == nil {
		return nil, errors.New("a store is required (WithStore, WithRedis or WithMemoryStore)")
	}

	seen := make(map[string]bool, len(cfg.monitors))
	for _, m := range cfg.monitors {
		if seen[m.id] {
			return nil, fmt.Errorf("duplicate monitor id: %q", m.id)
		}
		seen[m.id] = true
	}

	var authenticator auth.Authenticator = auth.Anonymous{}
	if len(cfg.jwtSecret) > 0 {
		j, err := auth.NewJWT(cfg.jwtSecret)
		if err != nil {
			return nil, err
		}
		authenticator = j
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Feed{
		openStore:       cfg.openStore,
		port:            cfg.port,
		path:            cfg.path,
		namespace:       cfg.namespace,
		topic:           cfg.topic,
		frames:          cfg.frames,
		storeTimeout:    cfg.storeTimeout,
		writeTimeout:    cfg.writeTimeout,
		authenticator:   authenticator,
		allowedOrigins:  cfg.allowedOrigins,
		registerer:      cfg.registerer,
		logger:          logger,
		monitors:        cfg.monitors,
		pollingInterval: cfg.pollingInterval,
		maxConcurrency:  cfg.maxConcurrency,
		updateCallbacks: cfg.updateCallbacks,
	}, nil
}

// Start connects to the store, subscribes to updates and serves clients.
//
// Start blocks until ctx is cancelled and returns nil on graceful shutdown.
// It returns an error if the store is unreachable, the subscription or the
// HTTP listener cannot be set up, or the update subscription is lost
// ([ErrUpdatesLost]).
func (f *Feed) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	st, owned, err := f.openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if owned {
		defer func() {
			if err := st.Close(); err != nil {
				f.logger.Warn("failed to close store", "error", err)
			}
		}()
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, f.storeTimeout)
	err = st.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m, gatherer := f.metrics()
	snaps := snapshot.NewClient(st, f.namespace, f.storeTimeout, f.logger)

	hub := updates.NewHub(st, f.topic, f.logger, m)
	if err := hub.Start(runCtx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", f.topic, err)
	}
	defer func() { _ = hub.Close() }()

	for _, cb := range f.updateCallbacks {
		obs := updates.NewAsyncObserver(updates.ObserverFunc(cb), 0, f.logger, m)
		go obs.Run(runCtx)
		if _, err := hub.Register(obs); err != nil {
			return fmt.Errorf("failed to register update callback: %w", err)
		}
	}

	httpServer := server.NewServer(snaps, hub, st, server.Options{
		Port:           f.port,
		Path:           f.path,
		Frames:         f.frames,
		WriteTimeout:   f.writeTimeout,
		Auth:           f.authenticator,
		AllowedOrigins: f.allowedOrigins,
		Gatherer:       gatherer,
	}, f.logger, m)
	if err := httpServer.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	f.logger.Info("monitorfeed started",
		"url", fmt.Sprintf("ws://localhost:%d%s", f.port, f.path),
		"namespace", f.namespace,
		"topic", f.topic,
		"frames", string(f.frames),
	)

	if len(f.monitors) > 0 {
		p := producer.New(f.producerMonitors(), st, producer.Options{
			Namespace:      f.namespace,
			Topic:          f.topic,
			Interval:       f.pollingInterval,
			MaxConcurrency: f.maxConcurrency,
		}, f.logger)
		p.Start(runCtx)
		defer p.Stop()
	}

	select {
	case <-ctx.Done():
	case <-hub.Done():
		if ctx.Err() == nil {
			f.logger.Error("update subscription ended, shutting down")
			return ErrUpdatesLost
		}
	}

	f.logger.Info("monitorfeed stopped")
	return nil
}

func (f *Feed) metrics() (*metrics.Metrics, prometheus.Gatherer) {
	if f.registerer == nil {
		return metrics.Default(), prometheus.DefaultGatherer
	}
	gatherer, _ := f.registerer.(prometheus.Gatherer)
	return metrics.MustNew(f.registerer), gatherer
}

// producerMonitors converts monitors to the producer's representation.
func (f *Feed) producerMonitors() []producer.Monitor {
	result := make([]producer.Monitor, len(f.monitors))
	for i, m := range f.monitors {
		result[i] = producer.Monitor{
			ID:       m.id,
			URL:      m.url,
			Method:   m.method,
			Headers:  copyMap(m.headers),
			Timeout:  m.timeout,
			Interval: m.interval,
		}
	}
	return result
}

// Monitors returns a copy of the producer's monitors.
func (f *Feed) Monitors() []Monitor {
	cp := make([]Monitor, len(f.monitors))
	copy(cp, f.monitors)
	return cp
}

// Port returns the configured HTTP port.
func (f *Feed) Port() int {
	return f.port
}

// Path returns the WebSocket endpoint path.
func (f *Feed) Path() string {
	return f.path
}

// Namespace returns the snapshot key namespace.
func (f *Feed) Namespace() string {
	return f.namespace
}

// Topic returns the update topic.
func (f *Feed) Topic() string {
	return f.topic
}
