// Package rpc contains the network layer of rKV. Nodes and clients talk plain
// HTTP with JSON bodies, the same API is used by clients and by nodes
// replicating writes to their peers.
//
// The package is organized into several subpackages:
//
//   - common: Wire types of the HTTP API (request and response bodies, paths,
//     the replication header), the server and client configuration and logging.
//
//   - client: A store.IStore backed by remote nodes and the peer client used by
//     the replication coordinator.
//
//   - server: The HTTP handler translating requests to store.IStore calls and
//     the Server that wires table, cache, coordinator and health monitor together.
package rpc
