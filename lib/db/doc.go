// Package db provides the table abstraction used by the rKV node to persist entries.
// It defines the ITable and ITx interfaces which describe a transactional,
// key-sorted table with a uniqueness constraint on the key.
//
// The package focuses on:
//   - A unified interface for point lookups, range scans and bulk writes
//   - A single atomic conditional update primitive (UpdateValue)
//   - Transactions as the only concurrency control mechanism
//
// Key Components:
//
//   - ITable Interface: Opens read-only (View) and read-write (Update) transactions.
//     Update transactions are serialized by the implementation. A closure that
//     returns an error aborts its transaction, nothing it wrote becomes visible.
//
//   - ITx Interface: The operations available inside a transaction: Get, GetMany,
//     Scan, Insert, UpdateValue, Put and Delete.
//
//   - Row: The persisted record (key, value, version, created_at, updated_at).
//
// Note on Versions:
//   - The table does not assign versions on Insert or Put, the caller does.
//   - UpdateValue is the only operation that changes a version on its own, it
//     always increments by exactly one. Since it runs inside a serialized write
//     transaction, two concurrent updates of the same key can never compute the
//     same new version.
//
// Related Packages:
//
// The engines/bolt package (github.com/ValentinKolb/rKV/lib/db/engines/bolt) stores
// the table in a single bbolt file.
//
// The engines/memory package (github.com/ValentinKolb/rKV/lib/db/engines/memory)
// keeps the table in an in-memory B-tree. It is used for tests and for nodes
// that do not need durability.
//
// The testing package (github.com/ValentinKolb/rKV/lib/db/testing) provides
// the conformance suite every engine has to pass:
//   - RunTableTests: Runs a standardized test suite to validate implementations
//   - RunTableBenchmarks: Provides performance benchmarks for comparing implementations
package db
