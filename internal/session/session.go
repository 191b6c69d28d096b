package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/monitorfeed/internal/metrics"
	"github.com/jpalmerr/monitorfeed/internal/snapshot"
	"github.com/jpalmerr/monitorfeed/internal/updates"
)

// DefaultMaxPending caps the distinct monitor IDs queued for one session.
const DefaultMaxPending = 1024

// State is the lifecycle state of a [Session].
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SnapshotReader is the read side of the snapshot store a session needs.
// [*snapshot.Client] implements it.
type SnapshotReader interface {
	List(ctx context.Context) ([]snapshot.MonitorSnapshot, error)
	FetchOne(ctx context.Context, monitorID string) (snapshot.MonitorSnapshot, bool, error)
}

// Config holds the collaborators of one session.
type Config struct {
	// ID identifies the session in logs. Empty generates a UUID.
	ID string

	// Subject is the authenticated principal, if any. Logged only.
	Subject string

	Transport Transport
	Snapshots SnapshotReader
	Hub       *updates.Hub

	// Frames selects the wire shape. Empty selects FramesEnvelope.
	Frames FrameMode

	// MaxPending caps queued distinct monitor IDs. Zero selects
	// DefaultMaxPending.
	MaxPending int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Session serves one client connection: the full snapshot first, then one
// update frame per announced monitor, until the transport closes.
//
// A session moves Connecting → Active → Closing → Closed. Store failures and
// malformed notifications are logged and leave it Active; only a transport
// close, a write failure or context cancellation end it.
type Session struct {
	id        string
	transport Transport
	snapshots SnapshotReader
	hub       *updates.Hub
	enc       encoder
	logger    *slog.Logger
	metrics   *metrics.Metrics

	state atomic.Int32
	queue *pendingQueue
	wake  chan struct{}

	mu       sync.Mutex
	reg      *updates.Registration
	released bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a session in [StateConnecting]. Call [Session.Run] to serve it.
func New(cfg Config) *Session {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)
	if cfg.Subject != "" {
		logger = logger.With("subject", cfg.Subject)
	}
	mode := cfg.Frames
	if mode == "" {
		mode = FramesEnvelope
	}
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}

	return &Session{
		id:        id,
		transport: cfg.Transport,
		snapshots: cfg.Snapshots,
		hub:       cfg.Hub,
		enc:       encoder{mode: mode, now: time.Now},
		logger:    logger,
		metrics:   cfg.Metrics,
		queue:     newPendingQueue(maxPending),
		wake:      make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed when the session reaches [StateClosed].
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Run serves the session until the transport closes or ctx is cancelled.
// Teardown always runs before Run returns.
//
// The session registers for updates before reading the snapshot so no
// announcement made while the snapshot is built is lost; queued
// announcements are processed only after the snapshot has been sent.
//
// Run returns an error only when registration fails, in which case nothing
// was sent and the transport has been closed.
func (s *Session) Run(ctx context.Context) error {
	if s.State() != StateConnecting {
		return errors.New("session: already started")
	}

	reg, err := s.hub.Register(s)
	if err != nil {
		s.logger.Error("session registration failed", "error", err)
		s.Close()
		return fmt.Errorf("register session: %w", err)
	}
	s.attach(reg)
	defer s.Close()

	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return nil
	}
	s.metrics.SessionOpened()
	s.logger.Info("session active")

	s.sendSnapshot(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.transport.Done():
			s.logger.Debug("transport closed")
			return nil
		case <-s.closed:
			return nil
		case <-s.wake:
			s.drain(ctx)
		}
	}
}

// Notify queues monitorID for refetch. It is called by the hub and never
// blocks.
//
// Blank identifiers are dropped. An identifier already queued is coalesced,
// so a burst of announcements for one monitor yields a single fetch of its
// newest value.
func (s *Session) Notify(monitorID string) {
	switch s.State() {
	case StateClosing, StateClosed:
		return
	}
	if s.transportGone() {
		return
	}

	if strings.TrimSpace(monitorID) == "" {
		s.logger.Warn("dropping update event without monitor id")
		s.metrics.EventDropped(metrics.ReasonMalformed)
		return
	}

	switch s.queue.push(monitorID) {
	case coalesced:
		s.metrics.EventDropped(metrics.ReasonCoalesced)
		return
	case full:
		s.logger.Warn("update queue full, dropping event", "monitor_id", monitorID)
		s.metrics.EventDropped(metrics.ReasonQueueFull)
		return
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close tears the session down: it releases the hub registration, discards
// queued announcements and closes the transport. Safe to call multiple
// times and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosing)))

		s.mu.Lock()
		s.released = true
		reg := s.reg
		s.reg = nil
		s.mu.Unlock()
		if reg != nil {
			reg.Release()
		}

		s.queue.clear()
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("transport close failed", "error", err)
		}

		s.state.Store(int32(StateClosed))
		close(s.closed)

		if prev == StateActive {
			s.metrics.SessionClosed()
		}
		s.logger.Info("session closed")
	})
}

// attach stores reg, releasing it at once if the session already closed.
func (s *Session) attach(reg *updates.Registration) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		reg.Release()
		return
	}
	s.reg = reg
	s.mu.Unlock()
}

func (s *Session) sendSnapshot(ctx context.Context) {
	snaps, err := s.snapshots.List(ctx)
	if err != nil {
		s.logger.Warn("snapshot read failed", "error", err)
		s.metrics.StoreError("list")
		s.sendError("snapshot unavailable")
		return
	}

	if len(snaps) == 0 {
		s.logger.Info("no monitors in store, snapshot not sent")
		return
	}

	frame, err := s.enc.snapshotFrame(snaps)
	if err != nil {
		s.logger.Error("failed to encode snapshot", "error", err)
		return
	}
	s.send(FrameSnapshot, frame)
}

// drain handles queued announcements while the session stays active. It
// closes the session as soon as the transport is gone, so no queued
// announcement is fetched for a departed client.
func (s *Session) drain(ctx context.Context) {
	for s.State() == StateActive && ctx.Err() == nil {
		if s.transportGone() {
			s.logger.Debug("transport closed, discarding queued updates", "pending", s.queue.len())
			s.Close()
			return
		}
		id, ok := s.queue.pop()
		if !ok {
			return
		}
		s.handleUpdate(ctx, id)
	}
}

// transportGone reports whether the client connection has left the open
// state or signalled done.
func (s *Session) transportGone() bool {
	if !CanSend(s.transport) {
		return true
	}
	select {
	case <-s.transport.Done():
		return true
	default:
		return false
	}
}

func (s *Session) handleUpdate(ctx context.Context, monitorID string) {
	snap, found, err := s.snapshots.FetchOne(ctx, monitorID)
	if err != nil {
		s.logger.Warn("snapshot refetch failed", "monitor_id", monitorID, "error", err)
		s.metrics.StoreError("fetch_one")
		s.metrics.EventDropped(metrics.ReasonStoreError)
		return
	}
	if !found {
		s.logger.Debug("no snapshot for announced monitor", "monitor_id", monitorID)
		s.metrics.EventDropped(metrics.ReasonNotFound)
		return
	}

	frame, err := s.enc.updateFrame(snap)
	if err != nil {
		s.logger.Error("failed to encode update", "monitor_id", monitorID, "error", err)
		return
	}
	s.send(FrameUpdate, frame)
}

func (s *Session) sendError(msg string) {
	frame, err := s.enc.errorFrame(msg)
	if err != nil || frame == nil {
		return
	}
	s.send(FrameError, frame)
}

// send writes one frame if the session is active and the transport open.
// A blocked send is a no-op; a failed write closes the session.
func (s *Session) send(frameType string, frame []byte) bool {
	if s.State() != StateActive {
		return false
	}
	if !CanSend(s.transport) {
		s.logger.Warn("transport not open, send skipped",
			"frame", frameType,
			"transport_state", s.transport.State().String(),
		)
		s.metrics.SendBlocked()
		return false
	}

	if err := s.transport.WriteText(frame); err != nil {
		s.logger.Warn("write failed, closing session", "frame", frameType, "error", err)
		s.Close()
		return false
	}
	s.metrics.FrameSent(frameType)
	return true
}
