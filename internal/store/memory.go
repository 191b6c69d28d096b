package store

import (
	"context"
	"strings"
	"sync"
)

// subscriptionBuffer is the per-subscriber channel capacity.
const subscriptionBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore keeps values in a map and fans published payloads out to
// buffered subscriber channels (buffer size 100). Sends are non-blocking; if
// a subscriber's buffer is full the payload is dropped for that subscriber
// so a stalled reader never blocks publishers.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool

	subMu  sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
}

// NewMemoryStore creates an empty [MemoryStore] ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		topics: make(map[string]map[*memorySubscription]struct{}),
	}
}

// Keys returns all keys starting with prefix.
func (m *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Get returns a copy of the value stored under key.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key, replacing any previous value.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	delete(m.values, key)
	return nil
}

// Subscribe registers a new subscriber on topic.
//
// Caller must Close the returned [Subscription] to release it.
func (m *MemoryStore) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		store: m,
		topic: topic,
		ch:    make(chan string, subscriptionBuffer),
	}

	m.subMu.Lock()
	subs, ok := m.topics[topic]
	if !ok {
		subs = make(map[*memorySubscription]struct{})
		m.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	m.subMu.Unlock()

	return sub, nil
}

// Publish sends payload to every subscriber of topic.
//
// This is non-blocking: if a subscriber's buffer is full, the payload is
// dropped for that subscriber.
func (m *MemoryStore) Publish(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for sub := range m.topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			// subscriber is slow, drop the message
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (m *MemoryStore) Subscribers(topic string) int {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return len(m.topics[topic])
}

// Ping reports ErrClosed once the store is closed.
func (m *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close ends every subscription and rejects further operations.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for topic, subs := range m.topics {
		for sub := range subs {
			sub.closeChannel()
		}
		delete(m.topics, topic)
	}
	return nil
}

// unsubscribe removes sub from its topic and closes its channel.
func (m *MemoryStore) unsubscribe(sub *memorySubscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	subs := m.topics[sub.topic]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(m.topics, sub.topic)
	}
	sub.closeChannel()
}

type memorySubscription struct {
	store *MemoryStore
	topic string
	ch    chan string
	once  sync.Once
}

func (s *memorySubscription) Messages() <-chan string {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.store.unsubscribe(s)
	return nil
}

// closeChannel must be called with store.subMu held.
func (s *memorySubscription) closeChannel() {
	s.once.Do(func() { close(s.ch) })
}
