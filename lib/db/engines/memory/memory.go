package memory

import (
	"sync"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

const degree = 32

var errReadOnly = errors.New("memory: write in read-only transaction")

type tableImpl struct {
	// mu guards tree and closed. Clone mutates the copy-on-write context
	// of the source tree, so it needs the exclusive lock as well.
	mu     sync.Mutex
	tree   *btree.BTreeG[db.Row]
	closed bool

	// writeMu serializes update transactions
	writeMu sync.Mutex
}

// NewMemoryTable creates an empty in-memory table.
func NewMemoryTable() db.ITable {
	return &tableImpl{
		tree: btree.NewG[db.Row](degree, func(a, b db.Row) bool { return a.Key < b.Key }),
	}
}

// snapshot returns a copy-on-write clone of the current tree
func (t *tableImpl) snapshot() (*btree.BTreeG[db.Row], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, db.ErrClosed
	}
	return t.tree.Clone(), nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.ITable)
// --------------------------------------------------------------------------

func (t *tableImpl) View(fn func(tx db.ITx) error) error {
	tree, err := t.snapshot()
	if err != nil {
		return err
	}
	return fn(&txImpl{tree: tree})
}

func (t *tableImpl) Update(fn func(tx db.ITx) error) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	tree, err := t.snapshot()
	if err != nil {
		return err
	}
	if err := fn(&txImpl{tree: tree, writable: true}); err != nil {
		// the clone is dropped, nothing becomes visible
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return db.ErrClosed
	}
	t.tree = tree
	return nil
}

func (t *tableImpl) Info() db.TableInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return db.TableInfo{
		Rows:   t.tree.Len(),
		DbType: db.ImplMemory,
	}
}

func (t *tableImpl) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.tree.Clear(false)
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	tree     *btree.BTreeG[db.Row]
	writable bool
}

func (tx *txImpl) Get(key string) (db.Row, bool, error) {
	row, ok := tx.tree.Get(db.Row{Key: key})
	return row, ok, nil
}

func (tx *txImpl) GetMany(keys []string) (map[string]db.Row, error) {
	rows := make(map[string]db.Row, len(keys))
	for _, key := range keys {
		if row, ok := tx.tree.Get(db.Row{Key: key}); ok {
			rows[key] = row
		}
	}
	return rows, nil
}

func (tx *txImpl) Scan(start, end, after string, fn func(row db.Row) (bool, error)) error {
	seek := start
	if after != "" && after > start {
		seek = after
	}

	var err error
	tx.tree.AscendGreaterOrEqual(db.Row{Key: seek}, func(row db.Row) bool {
		if row.Key > end {
			return false
		}
		if after != "" && row.Key == after {
			return true
		}
		var cont bool
		cont, err = fn(row)
		return err == nil && cont
	})
	return err
}

func (tx *txImpl) Insert(rows ...db.Row) error {
	if !tx.writable {
		return errReadOnly
	}
	for _, row := range rows {
		if tx.tree.Has(row) {
			return errors.Wrapf(db.ErrDuplicateKey, "key %q", row.Key)
		}
		tx.tree.ReplaceOrInsert(row)
	}
	return nil
}

func (tx *txImpl) UpdateValue(key, value string, now time.Time) (db.Row, bool, error) {
	if !tx.writable {
		return db.Row{}, false, errReadOnly
	}
	row, ok := tx.tree.Get(db.Row{Key: key})
	if !ok {
		return db.Row{}, false, nil
	}
	row.Value = value
	row.Version++
	row.UpdatedAt = now
	tx.tree.ReplaceOrInsert(row)
	return row, true, nil
}

func (tx *txImpl) Put(rows ...db.Row) error {
	if !tx.writable {
		return errReadOnly
	}
	for _, row := range rows {
		tx.tree.ReplaceOrInsert(row)
	}
	return nil
}

func (tx *txImpl) Delete(key string) (db.Row, bool, error) {
	if !tx.writable {
		return db.Row{}, false, errReadOnly
	}
	row, ok := tx.tree.Delete(db.Row{Key: key})
	return row, ok, nil
}
