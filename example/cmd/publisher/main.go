// Standalone publisher that plays the part of external monitoring workers:
// it writes random VPS states to Redis and announces them.
//
// Usage:
//
//	go run ./example/cmd/publisher -addr localhost:6379
//
// Then in another terminal:
//
//	go run ./cmd/monitorfeed serve -c example/config.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/monitorfeed/internal/producer"
	"github.com/jpalmerr/monitorfeed/internal/store"
)

type vpsState struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CPU       float64   `json:"cpu"`
	Memory    float64   `json:"memory"`
	CheckedAt time.Time `json:"checked_at"`
}

func main() {
	addr := flag.String("addr", "localhost:6379", "redis address")
	every := flag.Duration("every", 2*time.Second, "time between updates")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.NewRedisStore(store.RedisOptions{Addr: *addr})
	defer func() { _ = st.Close() }()

	if err := st.Ping(ctx); err != nil {
		slog.Error("redis unreachable", "addr", *addr, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Publishing to %s every %s. Press Ctrl+C to stop.\n", *addr, *every)

	ids := []string{"vps-1", "vps-2", "vps-3", "vps-4"}
	statuses := []string{"online", "online", "online", "degraded", "offline"}

	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		id := ids[rand.Intn(len(ids))]
		doc, _ := json.Marshal(vpsState{
			ID:        id,
			Name:      "server " + id,
			Status:    statuses[rand.Intn(len(statuses))],
			CPU:       rand.Float64() * 100,
			Memory:    rand.Float64() * 100,
			CheckedAt: time.Now().UTC(),
		})

		if err := producer.Announce(ctx, st, "vps-monitor", "monitor:update", id, doc); err != nil {
			slog.Error("publish failed", "monitor_id", id, "error", err)
			continue
		}
		slog.Info("published", "monitor_id", id)
	}
}
