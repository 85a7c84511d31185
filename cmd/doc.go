// Package cmd implements the command-line interface of rKV. It provides a
// hierarchical command structure with operations for running a node and
// interacting with a cluster as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (get, put, del, range, batch, status, perf)
//   - serve: Command for starting and configuring an rKV node
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rkv -help for a list of all commands.
package cmd
