// Package snapshot reads monitor snapshots from the key-value store.
//
// Snapshots live under "<namespace>:<monitorId>" keys and hold the
// producer's JSON document for that monitor. Reads are idempotent and
// side-effect free; a missing or malformed value never fails a full listing.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/monitorfeed/internal/store"
)

const (
	// DefaultTimeout bounds each store call when no timeout is configured.
	DefaultTimeout = 2 * time.Second

	// fetchConcurrency caps parallel GETs while building a full listing.
	fetchConcurrency = 16
)

// ErrMalformedSnapshot is returned by [Client.FetchOne] when the stored value
// is not a JSON object.
var ErrMalformedSnapshot = errors.New("snapshot: malformed value")

// MonitorSnapshot is the latest known state of one monitor.
type MonitorSnapshot struct {
	// ID is the monitor identifier, the key with its namespace prefix removed.
	ID string `json:"id"`

	// State is the producer's serialized document, passed through untouched.
	State json.RawMessage `json:"state"`
}

// Client resolves monitor snapshots from a [store.KV].
type Client struct {
	kv        store.KV
	namespace string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewClient creates a [Client] for keys under namespace.
//
// timeout bounds every store call; zero selects [DefaultTimeout]. A nil
// logger falls back to slog.Default().
func NewClient(kv store.KV, namespace string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		kv:        kv,
		namespace: namespace,
		timeout:   timeout,
		logger:    logger,
	}
}

// Namespace returns the key namespace without the trailing separator.
func (c *Client) Namespace() string {
	return c.namespace
}

// Prefix returns the key prefix shared by every snapshot, "<namespace>:".
func (c *Client) Prefix() string {
	return c.namespace + ":"
}

// Key returns the store key for monitorID.
func (c *Client) Key(monitorID string) string {
	return c.Prefix() + monitorID
}

// List returns every snapshot under the client's own namespace.
func (c *Client) List(ctx context.Context) ([]MonitorSnapshot, error) {
	return c.ListSnapshots(ctx, c.Prefix())
}

// ListSnapshots returns every parseable snapshot whose key starts with
// namespacePrefix, sorted by ID.
//
// Keys whose value is missing, unreadable or not a JSON object are dropped;
// a partial result is not an error. Only a failure to list the keys is
// returned.
func (c *Client) ListSnapshots(ctx context.Context, namespacePrefix string) ([]MonitorSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	keys, err := c.kv.Keys(ctx, namespacePrefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshot keys: %w", err)
	}
	sort.Strings(keys)

	results := make([]*MonitorSnapshot, len(keys))

	// the group context is not used: one failed GET must not cancel the rest
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			value, err := c.kv.Get(ctx, key)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					c.logger.Debug("snapshot read failed", "key", key, "error", err)
				}
				return nil
			}
			if !isObject(value) {
				c.logger.Debug("snapshot value is not a JSON object", "key", key)
				return nil
			}
			results[i] = &MonitorSnapshot{
				ID:    strings.TrimPrefix(key, namespacePrefix),
				State: json.RawMessage(value),
			}
			return nil
		})
	}
	_ = g.Wait()

	snapshots := make([]MonitorSnapshot, 0, len(results))
	for _, r := range results {
		if r != nil {
			snapshots = append(snapshots, *r)
		}
	}
	return snapshots, nil
}

// FetchOne returns the snapshot for monitorID.
//
// A missing key is reported as found == false with a nil error: the
// producer may not have written it yet, or the monitor was removed.
func (c *Client) FetchOne(ctx context.Context, monitorID string) (snap MonitorSnapshot, found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := c.Key(monitorID)
	value, err := c.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return MonitorSnapshot{}, false, nil
	}
	if err != nil {
		return MonitorSnapshot{}, false, fmt.Errorf("fetch snapshot %q: %w", monitorID, err)
	}
	if !isObject(value) {
		return MonitorSnapshot{}, false, fmt.Errorf("fetch snapshot %q: %w", monitorID, ErrMalformedSnapshot)
	}

	return MonitorSnapshot{ID: monitorID, State: json.RawMessage(value)}, true, nil
}

// isObject reports whether b holds exactly one valid JSON object.
func isObject(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
