package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestNewMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	if st == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	keys, err := st.Keys(context.Background(), "")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Keys() = %v items, want 0", len(keys))
	}
}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.Set(ctx, "ns:1", []byte(`{"status":"up"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := st.Get(ctx, "ns:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"status":"up"}` {
		t.Errorf("Get() = %s, want %s", got, `{"status":"up"}`)
	}
}

func TestMemoryStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_ = st.Set(ctx, "ns:1", []byte("up"))
	_ = st.Set(ctx, "ns:1", []byte("down"))

	got, _ := st.Get(ctx, "ns:1")
	if string(got) != "down" {
		t.Errorf("Get() = %s, want down", got)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	st := NewMemoryStore()

	_, err := st.Get(context.Background(), "ns:missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	_ = st.Set(ctx, "k", []byte("abc"))

	got, _ := st.Get(ctx, "k")
	got[0] = 'z'

	again, _ := st.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through Get() result: %s", again)
	}
}

func TestMemoryStore_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	_ = st.Set(ctx, "ns:1", []byte("{}"))
	_ = st.Set(ctx, "ns:2", []byte("{}"))
	_ = st.Set(ctx, "other:3", []byte("{}"))

	keys, err := st.Keys(ctx, "ns:")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "ns:1" || keys[1] != "ns:2" {
		t.Errorf("Keys() = %v, want [ns:1 ns:2]", keys)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	_ = st.Set(ctx, "ns:1", []byte("{}"))

	if err := st.Delete(ctx, "ns:1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := st.Get(ctx, "ns:1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := st.Delete(ctx, "ns:1"); err != nil {
		t.Errorf("Delete() of missing key error = %v, want nil", err)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	sub, err := st.Subscribe(ctx, "monitor:update")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	go func() {
		_ = st.Publish(ctx, "monitor:update", "42")
	}()

	select {
	case got := <-sub.Messages():
		if got != "42" {
			t.Errorf("received %q, want %q", got, "42")
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive message")
	}
}

func TestMemoryStore_PublishOrder(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	sub, _ := st.Subscribe(ctx, "t")
	defer sub.Close()

	want := []string{"a", "b", "c", "a"}
	for _, p := range want {
		_ = st.Publish(ctx, "t", p)
	}

	for i, w := range want {
		select {
		case got := <-sub.Messages():
			if got != w {
				t.Errorf("message %d = %q, want %q", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("message %d not received", i)
		}
	}
}

func TestMemoryStore_TopicsAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	sub, _ := st.Subscribe(ctx, "a")
	defer sub.Close()

	_ = st.Publish(ctx, "b", "x")

	select {
	case got := <-sub.Messages():
		t.Errorf("subscriber on a received %q published on b", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	sub1, _ := st.Subscribe(ctx, "t")
	sub2, _ := st.Subscribe(ctx, "t")
	sub3, _ := st.Subscribe(ctx, "t")

	go func() {
		_ = st.Publish(ctx, "t", "1")
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-sub1.Messages():
			received++
		case <-sub2.Messages():
			received++
		case <-sub3.Messages():
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 messages", received)
		}
	}
}

func TestMemoryStore_CloseSubscription(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	sub, _ := st.Subscribe(ctx, "t")
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Error("Close() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Close() channel should be closed immediately")
	}

	// second close is a no-op
	if err := sub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if n := st.Subscribers("t"); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	// subscriber that never reads
	_, _ = st.Subscribe(ctx, "t")

	fast, _ := st.Subscribe(ctx, "t")

	done := make(chan bool)
	go func() {
		for i := 0; i < 500; i++ {
			_ = st.Publish(ctx, "t", "1")
		}
		done <- true
	}()

	go func() {
		for range fast.Messages() {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Publish() blocked on slow subscriber")
	}
}

func TestMemoryStore_CloseStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	sub, _ := st.Subscribe(ctx, "t")

	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, ok := <-sub.Messages(); ok {
		t.Error("subscription channel should be closed after store Close()")
	}
	if err := sub.Close(); err != nil {
		t.Errorf("subscription Close() after store Close() error = %v", err)
	}
	if _, err := st.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
	if _, err := st.Subscribe(ctx, "t"); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after Close error = %v, want ErrClosed", err)
	}
	if err := st.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after Close error = %v, want ErrClosed", err)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	st := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := st.Keys(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Keys() error = %v, want context.Canceled", err)
	}
	if _, err := st.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var wg sync.WaitGroup
	numGoroutines := 10
	numOps := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				_ = st.Set(ctx, "ns:1", []byte("{}"))
				_ = st.Publish(ctx, "t", "1")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				_, _ = st.Keys(ctx, "ns:")
				_, _ = st.Get(ctx, "ns:1")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := st.Subscribe(ctx, "t")
			if err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
			_ = sub.Close()
		}()
	}

	wg.Wait()
}
