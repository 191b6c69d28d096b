package updates

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/jpalmerr/monitorfeed/internal/metrics"
)

// DefaultAsyncBuffer is the notification buffer of an [AsyncObserver].
const DefaultAsyncBuffer = 256

// AsyncObserver runs a possibly slow observer on its own goroutine so it
// never stalls the hub's dispatch loop. Notifications are delivered in order;
// when the buffer is full they are dropped and counted.
type AsyncObserver struct {
	next    Observer
	queue   chan string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAsyncObserver wraps next with a buffer of size buffer (DefaultAsyncBuffer
// when not positive). Call [AsyncObserver.Run] to start delivery.
func NewAsyncObserver(next Observer, buffer int, logger *slog.Logger, m *metrics.Metrics) *AsyncObserver {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncObserver{
		next:    next,
		queue:   make(chan string, buffer),
		logger:  logger,
		metrics: m,
	}
}

// Notify queues monitorID without blocking.
func (a *AsyncObserver) Notify(monitorID string) {
	select {
	case a.queue <- monitorID:
	default:
		a.logger.Warn("update callback lagging, dropping event", "monitor_id", monitorID)
		a.metrics.EventDropped(metrics.ReasonQueueFull)
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (a *AsyncObserver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-a.queue:
			a.deliver(id)
		}
	}
}

func (a *AsyncObserver) deliver(monitorID string) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("update callback panic",
				"correlation_id", uuid.NewString(),
				"monitor_id", monitorID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	a.next.Notify(monitorID)
}
