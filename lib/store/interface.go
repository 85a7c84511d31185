package store

import (
	"context"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
)

// --------------------------------------------------------------------------
// Limits
// --------------------------------------------------------------------------

const (
	// MaxKeyLength is the maximum length of a key in characters (runes).
	MaxKeyLength = 255
	// MaxPageSize is the default and maximum number of entries returned by ReadRange.
	MaxPageSize = 10_000
	// MaxBatchSize is the maximum number of items accepted by BatchPut.
	MaxBatchSize = 10_000
	// ChunkSize is the number of rows processed per table transaction by
	// BatchPut and Iterate.
	ChunkSize = 1_000
)

// --------------------------------------------------------------------------
// Data Types
// --------------------------------------------------------------------------

// Entry is a versioned key–value pair as seen by clients.
// Version starts at 1 and is incremented by exactly one per committed write.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryFromRow converts a table row into an Entry.
func EntryFromRow(row db.Row) Entry {
	return Entry{
		Key:       row.Key,
		Value:     row.Value,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
		CreatedAt: row.CreatedAt,
	}
}

// BatchItem is a single key–value pair of a BatchPut request.
type BatchItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RangeQuery selects all entries with Start <= key <= End.
type RangeQuery struct {
	Start string
	End   string
	// Limit is the page size. Zero means MaxPageSize, larger values are capped.
	Limit int
	// Offset skips the given number of matching entries.
	Offset int
	// Cursor is the last key of the previous page. Only keys > Cursor are returned.
	Cursor string
}

// Page is a single page of a range scan.
type Page struct {
	Entries []Entry
	// NextCursor is the key to pass as RangeQuery.Cursor to fetch the next page.
	// It is empty if HasMore is false.
	NextCursor string
	HasMore    bool
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface of the local versioned store of a node.
// Write operations take a replicate flag, if it is false the write is applied
// locally only (used for writes that arrive through replication themselves).
//
// Errors are either *Error (see RetCode) or *QuorumError.
type IStore interface {
	// Get returns the entry for key. A missing key returns an *Error with RetCNotFound.
	Get(ctx context.Context, key string) (entry Entry, err error)
	// Put creates or updates key. created reports whether the key was new.
	Put(ctx context.Context, key, value string, replicate bool) (entry Entry, created bool, err error)
	// Delete removes key. deleted is false (and no peer is contacted) if the key did not exist.
	Delete(ctx context.Context, key string, replicate bool) (deleted bool, err error)
	// ReadRange returns one page of the entries in [q.Start, q.End], sorted by key.
	ReadRange(ctx context.Context, q RangeQuery) (page Page, err error)
	// Iterate calls fn for every entry in [start, end] in key order. The range is
	// read from the table in chunks, so it may be arbitrarily large.
	Iterate(ctx context.Context, start, end string, fn func(entry Entry) error) (err error)
	// BatchPut creates or updates all items and returns the entries in input order.
	BatchPut(ctx context.Context, items []BatchItem, replicate bool) (entries []Entry, err error)
	// GetDBInfo returns metadata about the table underlying the store.
	GetDBInfo() (info db.TableInfo)
}
