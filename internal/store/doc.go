// Package store provides the key-value and publish/subscribe backends that
// hold the latest state of every monitor.
//
// The main components are:
//
//   - [KV], [Writer], [PubSub]: the capabilities the rest of the module
//     depends on
//   - [RedisStore]: production backend on Redis (SCAN/GET, SUBSCRIBE/PUBLISH)
//   - [MemoryStore]: in-process backend for tests and local development
//
// Subscriptions deliver payloads in publish order through buffered channels.
// Slow subscribers miss messages rather than block publishers.
package store
