package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/monitorfeed"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The returned options do not include a logger or metrics registerer; the
// caller appends those.
func BuildOptions(cfg *Config) ([]monitorfeed.Option, error) {
	opts := []monitorfeed.Option{
		monitorfeed.WithPort(cfg.Port),
		monitorfeed.WithPath(cfg.WSPath),
		monitorfeed.WithNamespace(cfg.Namespace),
		monitorfeed.WithTopic(cfg.Topic),
		monitorfeed.WithFrameMode(cfg.Frames),
		monitorfeed.WithStoreTimeout(cfg.StoreTimeout.Duration()),
		monitorfeed.WithWriteTimeout(cfg.WriteTimeout.Duration()),
		buildStore(cfg.Store),
	}

	if cfg.RequireAuth {
		opts = append(opts, monitorfeed.WithRequireAuth([]byte(cfg.JWTSecret)))
	}
	if len(cfg.AllowedOrigins) > 0 {
		opts = append(opts, monitorfeed.WithAllowedOrigins(cfg.AllowedOrigins...))
	}

	if cfg.Producer.Enabled {
		monitors, err := BuildMonitors(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			monitorfeed.WithProducer(monitors...),
			monitorfeed.WithPollingInterval(cfg.Producer.Interval.Duration()),
			monitorfeed.WithMaxConcurrency(cfg.Producer.MaxConcurrency),
		)
	}

	return opts, nil
}

// BuildMonitors converts the producer's monitor configs into SDK monitors.
func BuildMonitors(cfg *Config) ([]monitorfeed.Monitor, error) {
	monitors := make([]monitorfeed.Monitor, 0, len(cfg.Producer.Monitors))
	for _, mc := range cfg.Producer.Monitors {
		m, err := buildMonitor(mc)
		if err != nil {
			return nil, fmt.Errorf("monitor %s: %w", mc.ID, err)
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

func buildStore(sc StoreConfig) monitorfeed.Option {
	if sc.Backend == BackendMemory {
		return monitorfeed.WithMemoryStore()
	}
	return monitorfeed.WithRedis(monitorfeed.RedisOptions{
		Addr:     sc.Redis.Addr,
		Username: sc.Redis.Username,
		Password: sc.Redis.Password,
		DB:       sc.Redis.DB,
	})
}

// buildMonitor converts a single MonitorConfig to an SDK Monitor.
func buildMonitor(mc MonitorConfig) (monitorfeed.Monitor, error) {
	var opts []monitorfeed.MonitorOption

	if mc.Method != "" {
		opts = append(opts, monitorfeed.WithMethod(mc.Method))
	}

	if mc.Timeout != 0 {
		opts = append(opts, monitorfeed.WithTimeout(mc.Timeout.Duration()))
	}

	if len(mc.Headers) > 0 {
		opts = append(opts, monitorfeed.WithHeaders(mapToKeyValuePairs(mc.Headers)...))
	}

	if mc.Interval != 0 {
		opts = append(opts, monitorfeed.WithInterval(mc.Interval.Duration()))
	}

	return monitorfeed.NewMonitor(mc.ID, mc.URL, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
