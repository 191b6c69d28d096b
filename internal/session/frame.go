package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jpalmerr/monitorfeed/internal/snapshot"
)

// FrameMode selects the wire shape of outbound frames.
type FrameMode string

const (
	// FramesEnvelope wraps every frame in an object with a "type" field.
	FramesEnvelope FrameMode = "envelope"

	// FramesLegacy sends the stored documents bare: an array for the full
	// snapshot, a single object for an update. Clients tell them apart by
	// shape. No error frames are sent in this mode.
	FramesLegacy FrameMode = "legacy"
)

// ParseFrameMode parses a config value. Empty selects [FramesEnvelope].
func ParseFrameMode(s string) (FrameMode, error) {
	switch FrameMode(s) {
	case "", FramesEnvelope:
		return FramesEnvelope, nil
	case FramesLegacy:
		return FramesLegacy, nil
	default:
		return "", fmt.Errorf("unknown frame mode %q (expected %q or %q)", s, FramesEnvelope, FramesLegacy)
	}
}

// Frame types carried in the envelope "type" field.
const (
	FrameSnapshot = "snapshot"
	FrameUpdate   = "update"
	FrameError    = "error"
)

// Envelope is the discriminated frame sent in [FramesEnvelope] mode.
type Envelope struct {
	Type     string                     `json:"type"`
	Monitors []snapshot.MonitorSnapshot `json:"monitors,omitempty"`
	Monitor  *snapshot.MonitorSnapshot  `json:"monitor,omitempty"`
	Error    string                     `json:"error,omitempty"`
	SentAt   time.Time                  `json:"sent_at"`
}

// encoder renders frames for one mode.
type encoder struct {
	mode FrameMode
	now  func() time.Time
}

func (e encoder) snapshotFrame(snaps []snapshot.MonitorSnapshot) ([]byte, error) {
	if e.mode == FramesLegacy {
		docs := make([]json.RawMessage, len(snaps))
		for i, s := range snaps {
			docs[i] = s.State
		}
		return json.Marshal(docs)
	}
	return json.Marshal(Envelope{Type: FrameSnapshot, Monitors: snaps, SentAt: e.now()})
}

func (e encoder) updateFrame(snap snapshot.MonitorSnapshot) ([]byte, error) {
	if e.mode == FramesLegacy {
		return json.Marshal(snap.State)
	}
	return json.Marshal(Envelope{Type: FrameUpdate, Monitor: &snap, SentAt: e.now()})
}

// errorFrame returns nil, nil in legacy mode.
func (e encoder) errorFrame(msg string) ([]byte, error) {
	if e.mode == FramesLegacy {
		return nil, nil
	}
	return json.Marshal(Envelope{Type: FrameError, Error: msg, SentAt: e.now()})
}
