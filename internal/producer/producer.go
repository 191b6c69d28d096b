package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status values written to the state document.
const (
	StatusUp       = "up"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Monitor is one HTTP target probed by the [Producer].
type Monitor struct {
	// ID names the monitor; its state lives under "<namespace>:<ID>".
	ID string

	// URL is the target URL to probe.
	URL string

	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// Headers are sent with every probe.
	Headers map[string]string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Interval overrides the producer's interval for this monitor. Zero
	// uses the producer default.
	Interval time.Duration
}

// State is the document written for each probe.
type State struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Status         string    `json:"status"`
	StatusCode     int       `json:"status_code,omitempty"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	CheckedAt      time.Time `json:"checked_at"`
	Error          string    `json:"error,omitempty"`
}

// Options configures a [Producer].
type Options struct {
	Namespace      string
	Topic          string
	Interval       time.Duration
	MaxConcurrency int
}

// Producer probes monitors periodically and announces every result.
//
// All monitors are probed immediately on start. After that the producer
// ticks at the GCD of all monitor intervals and probes only monitors that
// are due. Start and Stop are safe for concurrent use.
type Producer struct {
	monitors []Monitor
	opts     Options
	sink     Sink
	client   *Client
	logger   *slog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	// per-monitor timing for tick-and-check
	lastProbedAt map[string]time.Time
	baseInterval time.Duration
}

// New creates a [Producer]. It does nothing until [Producer.Start].
func New(monitors []Monitor, sink Sink, opts Options, logger *slog.Logger) *Producer {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		monitors: monitors,
		opts:     opts,
		sink:     sink,
		client:   NewClient(),
		logger:   logger.With("component", "producer"),
		now:      time.Now,
	}
}

// calculateBaseInterval returns the GCD of all monitor intervals, floored at
// one second.
func (p *Producer) calculateBaseInterval() time.Duration {
	if len(p.monitors) == 0 {
		return p.opts.Interval
	}

	result := p.intervalOf(p.monitors[0])
	for _, m := range p.monitors[1:] {
		result = gcdDuration(result, p.intervalOf(m))
	}

	if result < time.Second {
		result = time.Second
	}
	return result
}

func (p *Producer) intervalOf(m Monitor) time.Duration {
	if m.Interval > 0 {
		return m.Interval
	}
	return p.opts.Interval
}

func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins the probing loop in a background goroutine and returns
// immediately. Start is idempotent; if Stop was called first it is a no-op.
func (p *Producer) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.lastProbedAt = make(map[string]time.Time, len(p.monitors))
	p.baseInterval = p.calculateBaseInterval()

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	p.logger.Info("producer started", "monitors", len(p.monitors), "tick", p.baseInterval)

	go func() {
		defer p.wg.Done()

		p.probeDue(runCtx, true)

		ticker := time.NewTicker(p.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.probeDue(runCtx, false)
			}
		}
	}()
}

// Stop halts the producer and waits for in-flight probes. Idempotent and
// safe to call before Start.
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		if p.cancel != nil {
			p.cancel()
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.client.Close()
}

// probeDue probes monitors whose interval has elapsed, or all of them when
// immediate is set. lastProbedAt is updated when a probe starts.
func (p *Producer) probeDue(ctx context.Context, immediate bool) {
	now := p.now()
	due := make([]Monitor, 0, len(p.monitors))

	p.mu.Lock()
	for _, m := range p.monitors {
		last, seen := p.lastProbedAt[m.ID]
		if immediate || !seen || now.Sub(last) >= p.intervalOf(m) {
			due = append(due, m)
			p.lastProbedAt[m.ID] = now
		}
	}
	p.mu.Unlock()

	if len(due) > 0 {
		p.probeAll(ctx, due)
	}
}

// probeAll runs monitors through a pool of at most MaxConcurrency workers.
func (p *Producer) probeAll(ctx context.Context, monitors []Monitor) {
	jobs := make(chan Monitor, len(monitors))

	var wg sync.WaitGroup
	workers := min(p.opts.MaxConcurrency, len(monitors))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if ctx.Err() != nil {
					return
				}
				p.safeProbe(ctx, m)
			}
		}()
	}

	for _, m := range monitors {
		jobs <- m
	}
	close(jobs)
	wg.Wait()
}

// safeProbe probes and announces one monitor. A panic is logged with a
// correlation ID and does not affect other monitors.
func (p *Producer) safeProbe(ctx context.Context, m Monitor) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("probe panic",
				"correlation_id", uuid.NewString(),
				"monitor_id", m.ID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	state := p.probe(ctx, m)
	doc, err := json.Marshal(state)
	if err != nil {
		p.logger.Error("failed to encode state", "monitor_id", m.ID, "error", err)
		return
	}
	if err := Announce(ctx, p.sink, p.opts.Namespace, p.opts.Topic, m.ID, doc); err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("failed to announce state", "monitor_id", m.ID, "error", err)
		}
		return
	}
	p.logger.Debug("monitor probed", "monitor_id", m.ID, "status", state.Status)
}

func (p *Producer) probe(ctx context.Context, m Monitor) State {
	res := p.client.Check(ctx, m)

	state := State{
		ID:             m.ID,
		URL:            m.URL,
		StatusCode:     res.StatusCode,
		ResponseTimeMS: res.Latency.Milliseconds(),
		CheckedAt:      p.now().UTC(),
	}
	if res.Error != nil {
		state.Status = StatusDown
		state.Error = res.Error.Error()
	} else {
		state.Status = httpStatusToStatus(res.StatusCode)
	}
	return state
}

// httpStatusToStatus maps HTTP status codes to status strings.
func httpStatusToStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return StatusUp
	case code >= 400 && code < 500:
		return StatusDegraded
	default:
		return StatusDown
	}
}
