// Package cache implements the entry side cache in front of the table.
//
// The cache has no consistency protocol of its own. The versioned store reads
// through it (cache-aside: on a miss the row is fetched from the table and the
// cache is populated) and invalidates keys on every write, delete and rollback,
// including writes that arrive through replication. Writes never populate the
// cache, so the first read after a write always goes to the table.
//
// NewLRUCache is backed by hashicorp/golang-lru/v2's expirable LRU, which
// bounds the number of entries and evicts them after the cache TTL. Shorter
// per-entry TTLs passed to Set are checked on Get against an injectable clock.
// NewNoopCache disables caching.
package cache
