// Package common provides the data structures shared by the rKV server, its
// clients and the command line interface.
//
// The package focuses on:
//   - The wire format of the HTTP API (routes, request and response bodies)
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - ReplicationHeader: The header that marks requests sent by a peer's
//     replication fan-out. The server applies such writes locally only, which
//     prevents writes from bouncing between nodes forever.
//
//   - Request & Response Bodies: JSON documents exchanged over the HTTP API.
//     ErrorResponse carries the name of the store.RetCode of a failed request,
//     so clients can rebuild the typed error.
//
//   - ServerConfig: Configuration of a node, including storage engine, peers,
//     replication, health, cache and limit settings. String renders the
//     effective configuration for the start-up log.
//
//   - ClientConfig: Configuration for client components, controlling endpoints,
//     timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that plugs into the logger package of
//     Dragonboat while providing consistent formatting across the application.
package common
