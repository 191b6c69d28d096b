package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	st := NewRedisStore(RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestRedisStore_KeysByPrefix(t *testing.T) {
	st, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("vps-monitor:1", `{"id":"1"}`))
	require.NoError(t, mr.Set("vps-monitor:2", `{"id":"2"}`))
	require.NoError(t, mr.Set("other:3", `{"id":"3"}`))

	keys, err := st.Keys(context.Background(), "vps-monitor:")
	require.NoError(t, err)

	sort.Strings(keys)
	require.Equal(t, []string{"vps-monitor:1", "vps-monitor:2"}, keys)
}

func TestRedisStore_KeysEscapesGlob(t *testing.T) {
	st, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("a*:1", "{}"))
	require.NoError(t, mr.Set("ab:2", "{}"))

	keys, err := st.Keys(context.Background(), "a*:")
	require.NoError(t, err)
	require.Equal(t, []string{"a*:1"}, keys)
}

func TestRedisStore_GetMissing(t *testing.T) {
	st, _ := newTestRedisStore(t)

	_, err := st.Get(context.Background(), "vps-monitor:nope")
	require.True(t, errors.Is(err, ErrNotFound), "Get() error = %v, want ErrNotFound", err)
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestRedisStore(t)

	require.NoError(t, st.Set(ctx, "k", []byte(`{"status":"up"}`)))

	got, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"up"}`, string(got))

	require.NoError(t, st.Delete(ctx, "k"))
	_, err = st.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_SubscribePublish(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestRedisStore(t)

	sub, err := st.Subscribe(ctx, "monitor:update")
	require.NoError(t, err)
	defer sub.Close()

	for _, id := range []string{"1", "2", "1"} {
		require.NoError(t, st.Publish(ctx, "monitor:update", id))
	}

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case msg := <-sub.Messages():
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("received %v, want 3 messages", got)
		}
	}
	require.Equal(t, []string{"1", "2", "1"}, got)
}

func TestRedisStore_SubscriptionCloseIsIdempotent(t *testing.T) {
	st, _ := newTestRedisStore(t)

	sub, err := st.Subscribe(context.Background(), "t")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Messages():
		require.False(t, ok, "Messages() should be closed")
	case <-time.After(time.Second):
		t.Fatal("Messages() not closed after Close()")
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	st, mr := newTestRedisStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := st.Keys(ctx, "ns:")
	require.Error(t, err)
	require.Error(t, st.Ping(ctx))
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"vps-monitor:", "vps-monitor:"},
		{"a*b", `a\*b`},
		{"q?[x]", `q\?\[x\]`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeGlob(tt.in); got != tt.want {
			t.Errorf("escapeGlob(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
