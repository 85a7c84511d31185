package bolt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	bolt "go.etcd.io/bbolt"
)

// FileName is the name of the bbolt file inside the data directory.
const FileName = "rkv.db"

var (
	bucketEntries = []byte("entries")
	log           = logger.GetLogger("db")
)

// Options configures the bbolt engine. A nil *Options is valid and uses the defaults.
type Options struct {
	// NoSync skips fsync after each commit. Only useful for tests.
	NoSync bool
	// OpenTimeout is the time to wait for the file lock. Zero waits forever.
	OpenTimeout time.Duration
}

type tableImpl struct {
	db   *bolt.DB
	path string
}

// NewBoltTable opens (or creates) the table stored in dir/FileName.
func NewBoltTable(dir string, opts *Options) (db.ITable, error) {
	if opts == nil {
		opts = &Options{OpenTimeout: 5 * time.Second}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", dir)
	}
	path := filepath.Join(dir, FileName)

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		NoSync:  opts.NoSync,
		Timeout: opts.OpenTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt db %s", path)
	}

	// create the bucket
	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, errors.Wrap(err, "create bucket")
	}

	log.Infof("opened bolt table at %s", path)
	return &tableImpl{db: bdb, path: path}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.ITable)
// --------------------------------------------------------------------------

func (t *tableImpl) View(fn func(tx db.ITx) error) error {
	return mapErr(t.db.View(func(btx *bolt.Tx) error {
		return fn(&txImpl{b: btx.Bucket(bucketEntries)})
	}))
}

func (t *tableImpl) Update(fn func(tx db.ITx) error) error {
	return mapErr(t.db.Update(func(btx *bolt.Tx) error {
		return fn(&txImpl{b: btx.Bucket(bucketEntries)})
	}))
}

func (t *tableImpl) Info() db.TableInfo {
	info := db.TableInfo{DbType: db.ImplBolt, Path: t.path}
	_ = t.db.View(func(btx *bolt.Tx) error {
		stats := btx.Bucket(bucketEntries).Stats()
		info.Rows = stats.KeyN
		info.Details = map[string]int{
			"branch_pages": stats.BranchPageN,
			"leaf_pages":   stats.LeafPageN,
			"depth":        stats.Depth,
		}
		return nil
	})
	return info
}

func (t *tableImpl) Close() error {
	log.Infof("closing bolt table at %s", t.path)
	return t.db.Close()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	b *bolt.Bucket
}

func (tx *txImpl) Get(key string) (db.Row, bool, error) {
	v := tx.b.Get([]byte(key))
	if v == nil {
		return db.Row{}, false, nil
	}
	row, err := decode(v)
	return row, err == nil, err
}

func (tx *txImpl) GetMany(keys []string) (map[string]db.Row, error) {
	rows := make(map[string]db.Row, len(keys))
	for _, key := range keys {
		row, ok, err := tx.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			rows[key] = row
		}
	}
	return rows, nil
}

func (tx *txImpl) Scan(start, end, after string, fn func(row db.Row) (bool, error)) error {
	c := tx.b.Cursor()

	var k, v []byte
	if after != "" && after >= start {
		k, v = c.Seek([]byte(after))
		if k != nil && string(k) == after {
			k, v = c.Next()
		}
	} else {
		k, v = c.Seek([]byte(start))
	}

	for ; k != nil && string(k) <= end; k, v = c.Next() {
		row, err := decode(v)
		if err != nil {
			return err
		}
		cont, err := fn(row)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (tx *txImpl) Insert(rows ...db.Row) error {
	for _, row := range rows {
		if tx.b.Get([]byte(row.Key)) != nil {
			return errors.Wrapf(db.ErrDuplicateKey, "key %q", row.Key)
		}
		if err := tx.put(row); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txImpl) UpdateValue(key, value string, now time.Time) (db.Row, bool, error) {
	row, ok, err := tx.Get(key)
	if err != nil || !ok {
		return db.Row{}, false, err
	}
	row.Value = value
	row.Version++
	row.UpdatedAt = now
	if err := tx.put(row); err != nil {
		return db.Row{}, false, err
	}
	return row, true, nil
}

func (tx *txImpl) Put(rows ...db.Row) error {
	for _, row := range rows {
		if err := tx.put(row); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txImpl) Delete(key string) (db.Row, bool, error) {
	row, ok, err := tx.Get(key)
	if err != nil || !ok {
		return db.Row{}, false, err
	}
	if err := tx.b.Delete([]byte(key)); err != nil {
		return db.Row{}, false, err
	}
	return row, true, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (tx *txImpl) put(row db.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrapf(err, "encode row %q", row.Key)
	}
	return tx.b.Put([]byte(row.Key), data)
}

// decode copies the row out of the bolt page, the slice is only valid during the transaction
func decode(v []byte) (db.Row, error) {
	var row db.Row
	if err := json.Unmarshal(v, &row); err != nil {
		return db.Row{}, errors.Wrap(err, "decode row")
	}
	return row, nil
}

func mapErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return db.ErrClosed
	}
	return err
}
