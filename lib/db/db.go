package db

import (
	"time"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBolt   Implementation = "bolt"
	ImplMemory Implementation = "memory"
)

var (
	// ErrDuplicateKey is returned by Insert if a row with the same key already exists.
	ErrDuplicateKey = errors.New("db: duplicate key")
	// ErrClosed is returned by all operations after the table was closed.
	ErrClosed = errors.New("db: table closed")
)

// Row is a single persisted entry of the table.
// Rows are ordered by Key (byte-wise lexicographic order).
type Row struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TableInfo struct {
	Rows    int            `json:"rows"`
	DbType  Implementation `json:"db_type"`
	Path    string         `json:"path,omitempty"`
	Details interface{}    `json:"details,omitempty"`
}

// --------------------------------------------------------------------------
// Table Interface
// --------------------------------------------------------------------------

// ITable is a transactional, key-sorted table of Row values with a uniqueness
// constraint on the key.
type ITable interface {
	// View runs fn inside a read-only transaction.
	// Write methods of the transaction return an error.
	View(fn func(tx ITx) error) (err error)

	// Update runs fn inside a read-write transaction.
	// Update transactions are serialized. If fn returns an error, none of its
	// changes become visible.
	Update(fn func(tx ITx) error) (err error)

	// Info returns information about the table.
	Info() (info TableInfo)

	// Close closes the table. All later calls return ErrClosed.
	Close() (err error)
}

// ITx is a single transaction on an ITable.
type ITx interface {

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns the row for an exact key.
	Get(key string) (row Row, found bool, err error)

	// GetMany returns all existing rows for the given keys. Missing keys are
	// not part of the result.
	GetMany(keys []string) (rows map[string]Row, err error)

	// Scan calls fn for every row with start <= key <= end in ascending key order.
	// If after is not empty, only rows with key > after are visited.
	// The scan stops once fn returns false or an error.
	Scan(start, end, after string, fn func(row Row) (cont bool, err error)) (err error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Insert adds new rows. It fails with ErrDuplicateKey if any key exists.
	Insert(rows ...Row) (err error)

	// UpdateValue updates the row for key in place: it sets value, increments
	// the version by exactly one and sets updated_at to now.
	// matched is false (and nothing is written) if no row exists for key.
	UpdateValue(key, value string, now time.Time) (row Row, matched bool, err error)

	// Put writes rows as given, overwriting existing rows with the same key.
	Put(rows ...Row) (err error)

	// Delete removes the row for key and returns it.
	Delete(key string) (row Row, deleted bool, err error)
}
