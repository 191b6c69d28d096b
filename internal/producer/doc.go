// Package producer is an optional built-in source of monitor snapshots.
//
// It probes configured HTTP monitors with a bounded worker pool and, for each
// result, writes the monitor's state document to the store and publishes the
// monitor ID on the update topic. The broadcast path never depends on it;
// any external process following the same key and topic conventions works
// equally well.
//
// The main components are:
//
//   - [Client]: HTTP probe with per-request timeouts and pooled connections
//   - [Producer]: periodic scheduler with a worker pool
//   - [Announce]: the write-then-publish step, shared with the CLI
package producer
