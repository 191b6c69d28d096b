package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jpalmerr/monitorfeed/internal/store"
)

// ErrInvalidState is returned when a state document is not a JSON object.
var ErrInvalidState = errors.New("producer: state must be a JSON object")

// Sink is where monitor states are written and announced.
type Sink interface {
	store.Writer
	Publish(ctx context.Context, topic, payload string) error
}

// Announce stores state under "<namespace>:<monitorID>" and then publishes
// monitorID on topic. The write happens first so that subscribers reading
// the key on notification see the new value.
func Announce(ctx context.Context, sink Sink, namespace, topic, monitorID string, state []byte) error {
	if strings.TrimSpace(monitorID) == "" {
		return errors.New("producer: monitor id is required")
	}
	trimmed := bytes.TrimSpace(state)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidState
	}

	key := namespace + ":" + monitorID
	if err := sink.Set(ctx, key, trimmed); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := sink.Publish(ctx, topic, monitorID); err != nil {
		return fmt.Errorf("failed to publish %s: %w", monitorID, err)
	}
	return nil
}
