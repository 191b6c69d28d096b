package producer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that sequential probes to the same host
// reuse pooled connections.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()
	m := Monitor{ID: "api", URL: server.URL, Timeout: 5 * time.Second}

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5
	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		if res := client.Check(ctx, m); res.Error != nil {
			t.Fatalf("request %d failed: %v", i, res.Error)
		}
	}

	if reusedCount < numRequests-2 {
		t.Errorf("expected at least %d reused connections, got %d", numRequests-2, reusedCount)
	}
}

func TestClient_MethodAndHeaders(t *testing.T) {
	var gotMethod, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Probe")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	res := NewClient().Check(context.Background(), Monitor{
		URL:     server.URL,
		Method:  http.MethodHead,
		Headers: map[string]string{"X-Probe": "monitorfeed"},
		Timeout: time.Second,
	})
	if res.Error != nil {
		t.Fatalf("Check() error = %v", res.Error)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("StatusCode = %d, want 204", res.StatusCode)
	}
	if gotMethod != http.MethodHead || gotHeader != "monitorfeed" {
		t.Errorf("request = %s with X-Probe %q", gotMethod, gotHeader)
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	res := NewClient().Check(context.Background(), Monitor{URL: server.URL, Timeout: 50 * time.Millisecond})
	if res.Error == nil {
		t.Fatal("Check() error = nil, want timeout")
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", res.StatusCode)
	}
}

func TestClient_InvalidURL(t *testing.T) {
	res := NewClient().Check(context.Background(), Monitor{URL: "://bad", Timeout: time.Second})
	if res.Error == nil {
		t.Error("Check() error = nil, want request creation error")
	}
}

// TestClient_Close verifies that Close is idempotent, nil-safe, and leaves
// the client usable.
func TestClient_Close(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var nilClient *Client
	nilClient.Close()

	client := NewClient()
	m := Monitor{URL: server.URL, Timeout: time.Second}
	client.Check(context.Background(), m)
	client.Close()
	client.Close()

	res := client.Check(context.Background(), m)
	if res.Error != nil || res.StatusCode != http.StatusOK {
		t.Errorf("Check() after Close = %+v", res)
	}
}
