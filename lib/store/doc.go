// Package store defines the versioned key-value store of an rKV node.
//
// Every entry carries a value, a version that starts at 1 and increases by
// exactly one per successful update, and creation and update timestamps. The
// package contains everything shared between the store implementation and its
// callers (the HTTP server, the replication layer and the CLI):
//
//   - IStore Interface: Point reads, writes and deletes, paginated range reads,
//     chunked iteration and batch writes. Write operations take a replicate flag.
//     Writes issued by clients replicate to the peers of the node, writes that
//     arrive from a peer are applied locally only.
//
//   - Entry, BatchItem, RangeQuery and Page: The data types exchanged over the
//     interface. Entries are built from db.Row values of the underlying table.
//
//   - Error System: Typed return codes (RetCode) wrapped in Error, plus
//     QuorumError for writes whose replication did not reach the write quorum.
//     CodeOf, IsNotFound, IsValidation and IsQuorumFailure classify errors
//     independently of how they were wrapped.
//
//   - Validation: ValidateKey, ValidateBatch and NormalizeRange reject invalid
//     requests before any storage is touched.
//
// Implementations:
//
//	- Versioned Store (vstore): The implementation backed by a db.ITable, an
//	  entry cache and a replication coordinator. Writes are committed locally,
//	  replicated, and compensated if the write quorum is not reached.
//	  Available in the "github.com/ValentinKolb/rKV/lib/store/vstore" package.
//
//	- Entry Cache (cache): The TTL bounded side cache used by vstore.
//	  Available in the "github.com/ValentinKolb/rKV/lib/store/cache" package.
package store
