package monitorfeed

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/monitorfeed/internal/session"
	"github.com/jpalmerr/monitorfeed/internal/store"
)

// Store is a snapshot and pub/sub backend. Implementations are provided by
// [WithRedis] and [WithMemoryStore]; custom backends can be passed to
// [WithStore].
type Store = store.Store

// RedisOptions configures the Redis backend.
type RedisOptions = store.RedisOptions

// feedConfig holds mutable state during Feed construction.
type feedConfig struct {
	openStore       func() (Store, bool, error)
	port            int
	path            string
	namespace       string
	topic           string
	frames          session.FrameMode
	storeTimeout    time.Duration
	writeTimeout    time.Duration
	jwtSecret       []byte
	allowedOrigins  []string
	registerer      prometheus.Registerer
	logger          *slog.Logger
	monitors        []Monitor
	pollingInterval time.Duration
	maxConcurrency  int
	updateCallbacks []func(monitorID string)
}

// Option configures a [Feed] during construction.
//
// Options return an error if validation fails.
type Option func(*feedConfig) error

// WithStore uses s as the backend. The caller keeps ownership; the feed
// never closes it.
func WithStore(s Store) Option {
	return func(cfg *feedConfig) error {
		if s == nil {
			return errors.New("store cannot be nil")
		}
		cfg.openStore = func() (Store, bool, error) { return s, false, nil }
		return nil
	}
}

// WithRedis connects to Redis when the feed starts. The connection is
// closed when Start returns.
func WithRedis(opts RedisOptions) Option {
	return func(cfg *feedConfig) error {
		if opts.Addr == "" {
			return errors.New("redis address is required")
		}
		cfg.openStore = func() (Store, bool, error) {
			return store.NewRedisStore(opts), true, nil
		}
		return nil
	}
}

// WithMemoryStore uses a fresh in-process store. Useful for local
// development together with the built-in producer.
func WithMemoryStore() Option {
	return func(cfg *feedConfig) error {
		cfg.openStore = func() (Store, bool, error) {
			return store.NewMemoryStore(), true, nil
		}
		return nil
	}
}

// WithPort sets the HTTP port. Defaults to 3333.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *feedConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithPath sets the WebSocket endpoint path. Defaults to "/ws/monitors".
func WithPath(path string) Option {
	return func(cfg *feedConfig) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("path must start with '/', got %q", path)
		}
		cfg.path = path
		return nil
	}
}

// WithNamespace sets the snapshot key namespace. Defaults to "vps-monitor".
func WithNamespace(ns string) Option {
	return func(cfg *feedConfig) error {
		if ns == "" || strings.ContainsAny(ns, " \t\r\n") {
			return fmt.Errorf("invalid namespace %q", ns)
		}
		cfg.namespace = ns
		return nil
	}
}

// WithTopic sets the update topic. Defaults to "monitor:update".
func WithTopic(topic string) Option {
	return func(cfg *feedConfig) error {
		if topic == "" || strings.ContainsAny(topic, " \t\r\n") {
			return fmt.Errorf("invalid topic %q", topic)
		}
		cfg.topic = topic
		return nil
	}
}

// WithFrameMode selects "envelope" (default) or "legacy" frames.
func WithFrameMode(mode string) Option {
	return func(cfg *feedConfig) error {
		m, err := session.ParseFrameMode(mode)
		if err != nil {
			return err
		}
		cfg.frames = m
		return nil
	}
}

// WithStoreTimeout bounds each snapshot read. Defaults to 2 seconds.
func WithStoreTimeout(d time.Duration) Option {
	return func(cfg *feedConfig) error {
		if d <= 0 {
			return errors.New("store timeout must be positive")
		}
		cfg.storeTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds each frame write to a client. Defaults to 5
// seconds.
func WithWriteTimeout(d time.Duration) Option {
	return func(cfg *feedConfig) error {
		if d <= 0 {
			return errors.New("write timeout must be positive")
		}
		cfg.writeTimeout = d
		return nil
	}
}

// WithRequireAuth requires an HS256 JWT signed with secret on the streaming
// and status endpoints.
func WithRequireAuth(secret []byte) Option {
	return func(cfg *feedConfig) error {
		if len(secret) == 0 {
			return errors.New("jwt secret cannot be empty")
		}
		cfg.jwtSecret = secret
		return nil
	}
}

// WithAllowedOrigins restricts WebSocket upgrades to the given Origin
// header values.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *feedConfig) error {
		cfg.allowedOrigins = append(cfg.allowedOrigins, origins...)
		return nil
	}
}

// WithRegisterer registers metrics with reg instead of the default
// registry. If reg is also a [prometheus.Gatherer], /metrics serves it.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *feedConfig) error {
		if reg == nil {
			return errors.New("registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *feedConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithProducer enables the built-in producer for the given monitors. Can be
// called multiple times.
func WithProducer(monitors ...Monitor) Option {
	return func(cfg *feedConfig) error {
		cfg.monitors = append(cfg.monitors, monitors...)
		return nil
	}
}

// WithPollingInterval sets how often the producer probes monitors without
// their own interval. Defaults to 15 seconds.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *feedConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithMaxConcurrency caps simultaneous producer probes. Defaults to 10.
func WithMaxConcurrency(n int) Option {
	return func(cfg *feedConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithUpdateCallback registers cb to be called with every monitor ID
// announced on the update topic, in announcement order.
//
// Each callback runs on its own goroutine behind a buffer of 256 events, so
// a slow callback never delays clients; events that overflow a lagging
// callback's buffer are dropped and logged. Panics are recovered and logged.
// Nil callbacks are ignored.
func WithUpdateCallback(cb func(monitorID string)) Option {
	return func(cfg *feedConfig) error {
		if cb == nil {
			return nil
		}
		cfg.updateCallbacks = append(cfg.updateCallbacks, cb)
		return nil
	}
}
