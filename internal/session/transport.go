package session

import "errors"

// ErrTransportClosed is returned by a [Transport] write once the
// transport has left the open state.
var ErrTransportClosed = errors.New("session: transport closed")

// TransportState is the lifecycle state of a client connection.
type TransportState int32

const (
	TransportConnecting TransportState = iota
	TransportOpen
	TransportClosing
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportClosing:
		return "closing"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is one client connection as seen by a [Session].
//
// Implementations must be safe for concurrent use: State and Done are read
// from the session goroutine while the connection's own read loop may be
// closing it.
type Transport interface {
	// State returns the current transport state. It must reflect close
	// events as soon as they are observed.
	State() TransportState

	// WriteText writes one text frame.
	WriteText(data []byte) error

	// Done is closed once the transport reaches [TransportClosed].
	Done() <-chan struct{}

	// Close starts closing the connection. Safe to call multiple times.
	Close() error
}
