// Package monitorfeed pushes live monitor status to connected clients over
// WebSockets.
//
// Monitor state lives in a shared key-value store under
// "<namespace>:<monitorId>", and producers announce changes by publishing the
// monitor ID on an update topic. On connect, each client receives the full
// snapshot of every monitor; after that it receives one frame per announced
// change, carrying the monitor's current stored state.
//
// # Quick Start
//
//	feed, _ := monitorfeed.New(
//	    monitorfeed.WithRedis(monitorfeed.RedisOptions{Addr: "localhost:6379"}),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	feed.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Feeds use the functional options pattern:
//
//	feed, err := monitorfeed.New(
//	    monitorfeed.WithRedis(monitorfeed.RedisOptions{Addr: "redis:6379"}),
//	    monitorfeed.WithPort(8080),
//	    monitorfeed.WithNamespace("vps-monitor"),
//	    monitorfeed.WithRequireAuth([]byte(os.Getenv("JWT_SECRET"))),
//	)
//
// The built-in producer probes HTTP monitors and writes their state, which
// is handy for local development with [WithMemoryStore]:
//
//	api, _ := monitorfeed.NewMonitor("api", "https://api.example.com/health")
//	feed, _ := monitorfeed.New(monitorfeed.WithMemoryStore(), monitorfeed.WithProducer(api))
//
// # Frames
//
// By default every frame is a JSON envelope with a "type" of "snapshot",
// "update" or "error". [WithFrameMode]("legacy") sends the bare stored
// documents instead: an array for the snapshot and a single document per
// update.
//
// # Architecture
//
//   - internal/store: Redis and in-memory backends
//   - internal/snapshot: namespace listing and single-record reads
//   - internal/updates: one upstream subscription fanned out to sessions
//   - internal/session: per-connection lifecycle and ordering
//   - internal/server: WebSocket, SSE, status, health and metrics endpoints
//   - internal/producer: optional HTTP prober
package monitorfeed
