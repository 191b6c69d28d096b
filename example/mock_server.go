package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockState tracks the current status code and next change time for one
// service.
type mockState struct {
	codeIdx      int
	nextChangeAt time.Time
}

// StartMockHealthServer runs a health endpoint whose status code cycles
// through 200, 429 and 503. Each service changes every 20-60 seconds.
func StartMockHealthServer(addr string) {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)
	codes := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusServiceUnavailable}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		svc := r.URL.Query().Get("svc")

		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		state, exists := states[svc]
		if !exists {
			state = &mockState{nextChangeAt: time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)}
			states[svc] = state
		}
		if time.Now().After(state.nextChangeAt) {
			old := codes[state.codeIdx]
			state.codeIdx = (state.codeIdx + 1) % len(codes)
			state.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("status change", "svc", svc, "from", old, "to", codes[state.codeIdx])
		}
		code := codes[state.codeIdx]
		mu.Unlock()

		w.WriteHeader(code)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
