package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/monitorfeed/internal/session"
)

// sseTransport writes frames as Server-Sent Events on a streaming response.
// It closes when the request context ends.
type sseTransport struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	logger       *slog.Logger

	// Some ResponseWriters (e.g. httptest.ResponseRecorder) don't support
	// deadlines. Checked once on the first write.
	deadlinesChecked   bool
	deadlinesSupported bool

	mu    sync.Mutex
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

func newSSETransport(ctx context.Context, w http.ResponseWriter, writeTimeout time.Duration, logger *slog.Logger) *sseTransport {
	t := &sseTransport{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	t.state.Store(int32(session.TransportOpen))

	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.done:
		}
	}()
	return t
}

func (t *sseTransport) State() session.TransportState {
	return session.TransportState(t.state.Load())
}

func (t *sseTransport) Done() <-chan struct{} {
	return t.done
}

// WriteText writes one "data:" event and flushes it. Frames are single-line
// JSON, so no continuation lines are needed.
func (t *sseTransport) WriteText(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State() != session.TransportOpen {
		return session.ErrTransportClosed
	}

	if !t.deadlinesChecked {
		err := t.rc.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		t.deadlinesSupported = !errors.Is(err, http.ErrNotSupported)
		t.deadlinesChecked = true
	} else if t.deadlinesSupported {
		_ = t.rc.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}

	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		t.state.CompareAndSwap(int32(session.TransportOpen), int32(session.TransportClosing))
		return err
	}
	if err := t.rc.Flush(); err != nil {
		t.state.CompareAndSwap(int32(session.TransportOpen), int32(session.TransportClosing))
		return err
	}
	return nil
}

func (t *sseTransport) Close() error {
	t.once.Do(func() {
		t.state.Store(int32(session.TransportClosed))
		close(t.done)
	})
	return nil
}
