// Package metrics exposes Prometheus collectors for the broadcast path.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "monitorfeed"
	subsystem = "broadcast"
)

// Drop reasons reported by [Metrics.EventDropped].
const (
	ReasonMalformed  = "malformed"
	ReasonQueueFull  = "queue_full"
	ReasonCoalesced  = "coalesced"
	ReasonNotFound   = "not_found"
	ReasonStoreError = "store_error"
)

// Metrics holds the collectors reported by the hub and sessions.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive prometheus.Gauge
	framesSent     *prometheus.CounterVec
	eventsReceived prometheus.Counter
	eventsDropped  *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	sendsBlocked   prometheus.Counter
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the process-wide instance registered with
// prometheus.DefaultRegisterer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew creates and registers the collectors with reg.
//
// Collectors already registered under the same name are reused, so building
// several instances against one registry is safe. Any other registration
// error panics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_active",
			Help:      "Number of connected sessions.",
		}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Frames written to clients, by frame type.",
		}, []string{"type"}),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_received_total",
			Help:      "Update notifications received from the pub/sub topic.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_dropped_total",
			Help:      "Update notifications that produced no frame, by reason.",
		}, []string{"reason"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_errors_total",
			Help:      "Failed snapshot store reads, by operation.",
		}, []string{"op"}),
		sendsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sends_blocked_total",
			Help:      "Sends skipped because the transport was not open.",
		}),
	}

	m.sessionsActive = register(reg, m.sessionsActive)
	m.framesSent = register(reg, m.framesSent)
	m.eventsReceived = register(reg, m.eventsReceived)
	m.eventsDropped = register(reg, m.eventsDropped)
	m.storeErrors = register(reg, m.storeErrors)
	m.sendsBlocked = register(reg, m.sendsBlocked)
	return m
}

// register registers c, returning the existing collector when one with the
// same descriptor is already present.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// FrameSent counts one frame of the given type.
func (m *Metrics) FrameSent(frameType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(frameType).Inc()
}

// EventReceived counts one notification taken off the topic.
func (m *Metrics) EventReceived() {
	if m == nil {
		return
	}
	m.eventsReceived.Inc()
}

// EventDropped counts a notification that produced no frame.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// StoreError counts a failed store read.
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// SendBlocked counts a send skipped by the delivery guard.
func (m *Metrics) SendBlocked() {
	if m == nil {
		return
	}
	m.sendsBlocked.Inc()
}
