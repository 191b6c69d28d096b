package server

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/monitorfeed/internal/session"
)

const (
	// pongWait is how long the peer may stay silent before the connection
	// is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = 30 * time.Second

	// maxInboundMessage caps client frames. The stream is one-way; clients
	// only send control frames.
	maxInboundMessage = 512

	closeGrace = time.Second
)

// wsTransport adapts a gorilla connection to [session.Transport].
//
// gorilla allows one concurrent writer, so WriteText and the ping pump share
// writeMu. The read pump owns all reads and flips the transport to closed
// when the peer goes away.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu sync.Mutex
	state   atomic.Int32
	done    chan struct{}
	once    sync.Once
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *wsTransport {
	t := &wsTransport{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	t.state.Store(int32(session.TransportOpen))

	go t.readPump()
	go t.pingPump()
	return t
}

func (t *wsTransport) State() session.TransportState {
	return session.TransportState(t.state.Load())
}

func (t *wsTransport) Done() <-chan struct{} {
	return t.done
}

func (t *wsTransport) WriteText(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.State() != session.TransportOpen {
		return session.ErrTransportClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.state.CompareAndSwap(int32(session.TransportOpen), int32(session.TransportClosing))
		return err
	}
	return nil
}

// Close sends a normal close frame and releases the connection. Safe to
// call more than once.
func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		if t.state.CompareAndSwap(int32(session.TransportOpen), int32(session.TransportClosing)) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			t.writeMu.Lock()
			werr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			t.writeMu.Unlock()
			if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
				t.logger.Debug("close frame not sent", "error", werr)
			}
		}
		err = t.conn.Close()
		t.markClosed()
	})
	return err
}

func (t *wsTransport) markClosed() {
	prev := session.TransportState(t.state.Swap(int32(session.TransportClosed)))
	if prev != session.TransportClosed {
		close(t.done)
	}
}

// readPump discards client data and processes control frames. It exits on
// the first read error, which is how a peer disconnect surfaces.
func (t *wsTransport) readPump() {
	t.conn.SetReadLimit(maxInboundMessage)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := t.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("websocket read ended", "error", err)
			}
			t.Close()
			return
		}
	}
}

func (t *wsTransport) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
			t.writeMu.Unlock()
			if err != nil {
				t.Close()
				return
			}
		}
	}
}
