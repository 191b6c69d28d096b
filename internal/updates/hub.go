// Package updates fans change notifications from the shared update topic out
// to every live session.
//
// One [Hub] holds a single upstream subscription per process and a registry
// of observers. Each observer receives every notification in publish order
// through [Observer.Notify]; there is no ordering across observers.
package updates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/monitorfeed/internal/metrics"
	"github.com/jpalmerr/monitorfeed/internal/store"
)

// ErrHubClosed is returned by [Hub.Register] once the hub has shut down.
var ErrHubClosed = errors.New("updates: hub closed")

// Observer receives monitor identifiers announced on the update topic.
//
// Notify is called from the hub's dispatch goroutine and must not block.
type Observer interface {
	Notify(monitorID string)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(monitorID string)

// Notify calls f(monitorID).
func (f ObserverFunc) Notify(monitorID string) { f(monitorID) }

// Hub owns the upstream subscription and the observer registry.
//
// All methods are safe for concurrent use.
type Hub struct {
	pubsub  store.PubSub
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	observers map[*Registration]struct{}
	sub       store.Subscription
	started   bool
	closed    bool
	done      chan struct{}
}

// NewHub creates a [Hub] for topic. It does nothing until [Hub.Start].
func NewHub(ps store.PubSub, topic string, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		pubsub:    ps,
		topic:     topic,
		logger:    logger,
		metrics:   m,
		observers: make(map[*Registration]struct{}),
		done:      make(chan struct{}),
	}
}

// Topic returns the subscribed topic name.
func (h *Hub) Topic() string {
	return h.topic
}

// Start subscribes to the topic and begins dispatching in a background
// goroutine. Dispatch stops when ctx is cancelled or [Hub.Close] is called.
//
// Start returns the subscription error, if any; it is not retried.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	sub, err := h.pubsub.Subscribe(ctx, h.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %q: %w", h.topic, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = sub.Close()
		return ErrHubClosed
	}
	h.sub = sub
	h.mu.Unlock()

	go h.dispatch(ctx, sub)
	return nil
}

// Done is closed when dispatch has stopped. It never closes if Start did not
// succeed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// dispatch delivers each message to every observer registered at the time
// the message is taken off the subscription.
func (h *Hub) dispatch(ctx context.Context, sub store.Subscription) {
	defer close(h.done)
	defer h.Close()

	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-msgs:
			if !ok {
				h.logger.Warn("update subscription ended", "topic", h.topic)
				return
			}
			h.metrics.EventReceived()
			h.broadcast(id)
		}
	}
}

func (h *Hub) broadcast(monitorID string) {
	h.mu.RLock()
	targets := make([]*Registration, 0, len(h.observers))
	for r := range h.observers {
		targets = append(targets, r)
	}
	h.mu.RUnlock()

	for _, r := range targets {
		h.notifySafe(r, monitorID)
	}
}

// notifySafe calls the observer with panic recovery so one faulty observer
// cannot stop delivery to the rest.
func (h *Hub) notifySafe(r *Registration, monitorID string) {
	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			h.logger.Error("observer panic",
				"correlation_id", correlationID,
				"monitor_id", monitorID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if r.released() {
		return
	}
	r.observer.Notify(monitorID)
}

// Register adds o to the registry. The returned [Registration] must be
// released when the observer goes away.
func (h *Hub) Register(o Observer) (*Registration, error) {
	if o == nil {
		return nil, errors.New("updates: nil observer")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	r := &Registration{hub: h, observer: o}
	h.observers[r] = struct{}{}
	return r, nil
}

// Len returns the number of live registrations.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close stops dispatch, releases the upstream subscription and drops every
// registration. Safe to call multiple times.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sub := h.sub
	h.sub = nil
	for r := range h.observers {
		r.markReleased()
	}
	h.observers = make(map[*Registration]struct{})
	h.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}

func (h *Hub) remove(r *Registration) {
	h.mu.Lock()
	delete(h.observers, r)
	h.mu.Unlock()
}

// Registration ties one observer to a [Hub].
type Registration struct {
	hub      *Hub
	observer Observer

	mu   sync.Mutex
	gone bool
	once sync.Once
}

// Release removes the observer from the hub. After Release returns no new
// notification is dispatched to the observer; one already in flight may
// still arrive. Safe to call multiple times.
func (r *Registration) Release() {
	r.once.Do(func() {
		r.markReleased()
		r.hub.remove(r)
	})
}

func (r *Registration) markReleased() {
	r.mu.Lock()
	r.gone = true
	r.mu.Unlock()
}

func (r *Registration) released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gone
}
