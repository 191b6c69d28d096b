package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [KV.Get] when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store: closed")

// KV is the read side of the key-value store holding monitor snapshots.
//
// Implementations must be safe for concurrent access.
type KV interface {
	// Keys returns every key that starts with prefix. Order is unspecified.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)
}

// Writer is the write side of the key-value store.
//
// The broadcast path never writes; Writer exists for producers and tooling.
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Subscription is a live registration on a pub/sub topic.
type Subscription interface {
	// Messages returns the channel of payloads published to the topic, in
	// publish order. The channel is closed when the subscription ends.
	Messages() <-chan string

	// Close ends the subscription. Safe to call multiple times.
	Close() error
}

// PubSub is the publish/subscribe channel carrying change notifications.
type PubSub interface {
	// Subscribe registers on topic. The subscription is active when
	// Subscribe returns without error.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish delivers payload to every current subscriber of topic.
	Publish(ctx context.Context, topic, payload string) error
}

// Store combines every capability of a backend.
type Store interface {
	KV
	Writer
	PubSub

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
