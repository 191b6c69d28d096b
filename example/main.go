package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/monitorfeed"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockHealthServer(":9999")
	time.Sleep(100 * time.Millisecond)

	var monitors []monitorfeed.Monitor
	for _, svc := range []string{"users", "orders", "billing"} {
		m, err := monitorfeed.NewMonitor(svc, "http://localhost:9999/health?svc="+svc)
		if err != nil {
			slog.Error("failed to create monitor", "error", err)
			os.Exit(1)
		}
		monitors = append(monitors, m)
	}

	// an external monitor with its own interval (overrides global 5s)
	github, _ := monitorfeed.NewMonitor("github", "https://api.github.com",
		monitorfeed.WithInterval(30*time.Second),
	)
	monitors = append(monitors, github)

	feed, err := monitorfeed.New(
		monitorfeed.WithMemoryStore(),
		monitorfeed.WithProducer(monitors...),
		monitorfeed.WithPollingInterval(5*time.Second),
		monitorfeed.WithPort(3333),
		monitorfeed.WithUpdateCallback(func(id string) {
			slog.Debug("monitor updated", "monitor_id", id)
		}),
	)
	if err != nil {
		slog.Error("failed to create feed", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  monitorfeed demo")
	fmt.Println()
	fmt.Println("  WebSocket: ws://localhost:3333/ws/monitors")
	fmt.Println("  SSE:       curl -N http://localhost:3333/api/sse")
	fmt.Println("  Snapshot:  curl http://localhost:3333/api/status")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := feed.Start(ctx); err != nil {
		slog.Error("monitorfeed error", "error", err)
		os.Exit(1)
	}
}
