package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// defaultScanCount is the COUNT hint passed to SCAN.
const defaultScanCount = 100

// RedisOptions configures a [RedisStore].
type RedisOptions struct {
	// Addr is the host:port of the Redis server.
	Addr string

	Username string
	Password string
	DB       int

	// ScanCount is the SCAN COUNT hint. Defaults to 100.
	ScanCount int64
}

// RedisStore is the production [Store] backed by Redis.
//
// Keys are listed with SCAN rather than KEYS so large keyspaces do not block
// the server. Subscriptions use one dedicated connection each, managed by
// go-redis, which reconnects and resubscribes on network errors.
type RedisStore struct {
	client    *redis.Client
	scanCount int64
}

// NewRedisStore connects lazily to the server described by opts.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreFromClient(client, opts.ScanCount)
}

// NewRedisStoreFromClient wraps an existing go-redis client.
func NewRedisStoreFromClient(client *redis.Client, scanCount int64) *RedisStore {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	return &RedisStore{client: client, scanCount: scanCount}
}

// Keys returns all keys starting with prefix using SCAN MATCH.
//
// SCAN may report a key more than once; duplicates are removed.
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"
	iter := r.client.Scan(ctx, 0, pattern, r.scanCount).Iterator()

	seen := make(map[string]struct{})
	var keys []string
	for iter.Next(ctx) {
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", pattern, err)
	}
	return keys, nil
}

// Get returns the value under key or [ErrNotFound].
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, nil
}

// Set stores value under key with no expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Subscribe issues SUBSCRIBE and waits for the server's confirmation.
func (r *RedisStore) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, topic)

	// Receive blocks until the subscription is confirmed or fails.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %q: %w", topic, err)
	}

	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan string, subscriptionBuffer),
		done: make(chan struct{}),
	}
	go sub.pump(ps.Channel())
	return sub, nil
}

// Publish issues PUBLISH.
func (r *RedisStore) Publish(ctx context.Context, topic, payload string) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", topic, err)
	}
	return nil
}

// Ping issues PING.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client and its connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan string
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) Messages() <-chan string {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// pump forwards payloads in order until the subscription is closed.
func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- msg.Payload:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

// escapeGlob escapes the characters SCAN MATCH treats as glob syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
