// Package vstore implements the versioned store of an rKV node based on the
// store.IStore interface. It combines a db.ITable holding the entries, an
// entry cache (lib/store/cache) and a replication coordinator
// (lib/replication).
//
// Key Features:
//   - Per-key versions that start at 1 and grow by exactly one per committed write
//   - Cache-aside reads with invalidate-only writes
//   - Replication of client writes to a majority of the cluster
//   - Compensation of local writes whose replication failed
//   - Paginated range reads (offset and cursor) and chunked iteration
//   - Chunked batch writes with bulk lookup, insert and update per chunk
//
// Implementation Details:
//
//   - Versioning: Put runs a single update transaction that updates the row in
//     place (value, version+1, updated_at) or inserts it with version 1.
//     Update transactions of the table are serialized, so two writes to the
//     same key never observe the same version.
//
//   - Write Path: The local change is committed first and the cache entry is
//     invalidated. Then (only if replicate is true) the write is handed to the
//     IReplicator. Holding the transaction open during replication is not an
//     option: two nodes replicating a write to each other would block each
//     other until the peer timeout.
//
//   - Rollback: If the quorum is not reached, the change is compensated in a
//     new transaction. A put restores the previous row (or removes the created
//     row), a delete re-inserts the removed row. A key that was written again in
//     the meantime keeps its newer state. The caller receives a
//     *store.QuorumError. Between commit and compensation other readers may see
//     the uncommitted value.
//
//   - Batches: Items are written in chunks of ChunkSize, each chunk in its own
//     transaction. The full batch is replicated once after all chunks were
//     written. With StrictBatchRollback (default) every committed chunk is
//     compensated if a later chunk fails or the quorum is not reached. Without
//     it, committed chunks are kept.
//
//   - Cache Races: A read populates the cache only if no local write was
//     committed while it read the table, so a slow read can not put a value in
//     the cache that a concurrent write already replaced.
//
// Usage Example:
//
//	table := memory.NewMemoryTable()
//	health := replication.NewHealthMonitor(peers, peerClient, replication.HealthOptions{})
//	coord := replication.NewCoordinator(peerClient, health, replication.DefaultOptions())
//	s := vstore.NewVersionedStore(table, coord, cache.NewLRUCache(cache.Options{}), vstore.DefaultOptions())
//
//	entry, created, err := s.Put(ctx, "user:1", "alice", true)
package vstore
