package monitorfeed

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMonitorTimeout = 10 * time.Second

// Monitor is an HTTP target probed by the built-in producer.
//
// Monitor is immutable after creation via [NewMonitor]. Getters return
// copies of mutable data.
type Monitor struct {
	id       string
	url      string
	headers  map[string]string
	timeout  time.Duration
	method   string
	interval time.Duration
}

// ID returns the monitor ID. Its snapshot is stored under
// "<namespace>:<id>".
func (m Monitor) ID() string {
	return m.id
}

// URL returns the probed URL.
func (m Monitor) URL() string {
	return m.url
}

// Headers returns a copy of the headers sent with every probe, or nil.
func (m Monitor) Headers() map[string]string {
	return copyMap(m.headers)
}

// Timeout returns the probe timeout. Defaults to 10 seconds.
func (m Monitor) Timeout() time.Duration {
	return m.timeout
}

// Method returns the HTTP method, or "" for GET.
func (m Monitor) Method() string {
	return m.method
}

// Interval returns the monitor's own probe interval, or 0 when the producer
// interval applies.
func (m Monitor) Interval() time.Duration {
	return m.interval
}

// NewMonitor creates a [Monitor] with the given ID, URL, and options.
//
// The ID must be non-empty and free of whitespace. The URL must use the
// http or https scheme.
//
// Example:
//
//	api, err := monitorfeed.NewMonitor("api", "https://api.example.com/health",
//	    monitorfeed.WithTimeout(5 * time.Second),
//	)
func NewMonitor(id, rawURL string, opts ...MonitorOption) (Monitor, error) {
	if id == "" {
		return Monitor{}, errors.New("monitor id cannot be empty")
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return Monitor{}, errors.New("monitor id must not contain whitespace")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Monitor{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Monitor{}, errors.New("URL must have an http:// or https:// scheme")
	}

	cfg := &monitorConfig{
		headers: make(map[string]string),
		timeout: defaultMonitorTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Monitor{}, err
		}
	}

	return Monitor{
		id:       id,
		url:      rawURL,
		headers:  cfg.headers,
		timeout:  cfg.timeout,
		method:   cfg.method,
		interval: cfg.interval,
	}, nil
}

// monitorConfig holds mutable state during monitor construction.
type monitorConfig struct {
	headers  map[string]string
	timeout  time.Duration
	method   string
	interval time.Duration
}

// MonitorOption configures a [Monitor] during construction.
//
// Built-in options: [WithHeaders], [WithTimeout], [WithMethod], [WithInterval].
type MonitorOption func(*monitorConfig) error

// WithHeaders adds HTTP headers to every probe of this monitor.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
func WithHeaders(keyValues ...string) MonitorOption {
	return func(cfg *monitorConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the probe timeout. A monitor that does not answer in
// time is reported down.
func WithTimeout(d time.Duration) MonitorOption {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMethod sets the probe method: GET (default), HEAD, or POST.
func WithMethod(method string) MonitorOption {
	return func(cfg *monitorConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithInterval probes this monitor at d instead of the producer interval.
// d must be between 1 second and 1 hour.
//
// The interval is measured from when a probe starts, not when it completes.
func WithInterval(d time.Duration) MonitorOption {
	return func(cfg *monitorConfig) error {
		if d < time.Second {
			return errors.New("interval must be at least 1 second")
		}
		if d > time.Hour {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
