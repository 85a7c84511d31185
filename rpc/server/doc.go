// Package server implements an rKV node.
//
// NewServer opens the table of the configured engine (bolt or memory) and
// builds the versioned store on top of it, together with the entry cache, the
// health monitor and the replication coordinator for the configured peers.
// Serve runs the HTTP API until the context is canceled or SIGINT/SIGTERM is
// received, then shuts the server down gracefully and closes the table.
//
// Routes:
//
//	GET    /kv/{key...}   read an entry
//	PUT    /kv/{key...}   create or update an entry, body {"value": "..."}
//	DELETE /kv/{key...}   delete an entry
//	GET    /kv            range read (start, end, limit, offset, cursor)
//	POST   /kv/batch      create or update up to MaxBatchSize entries
//	GET    /health        cluster status
//	GET    /health/live   liveness probe used by the peers
//	GET    /info          table metadata and peers
//	GET    /metrics       prometheus metrics
//
// Writes carrying the X-Replication header are applied locally only. Errors
// are returned as {"detail": "...", "code": "..."} with the status code
// derived from the store.RetCode.
//
// NewHandler returns the plain http.Handler, which is what the tests use
// together with httptest.
package server
