package vstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/cache"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// Options configures the versioned store.
type Options struct {
	// MaxPageSize caps ReadRange pages (store.MaxPageSize if <= 0).
	MaxPageSize int
	// MaxBatchSize caps BatchPut requests (store.MaxBatchSize if <= 0).
	MaxBatchSize int
	// ChunkSize is the number of rows per table transaction of BatchPut
	// and Iterate (store.ChunkSize if <= 0).
	ChunkSize int
	// StrictBatchRollback compensates all committed chunks of a batch whose
	// replication failed. If false, committed chunks are kept.
	StrictBatchRollback bool
	// Now is the clock for created_at and updated_at.
	Now func() time.Time
}

// DefaultOptions returns the options used by the server if nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxPageSize:         store.MaxPageSize,
		MaxBatchSize:        store.MaxBatchSize,
		ChunkSize:           store.ChunkSize,
		StrictBatchRollback: true,
	}
}

type storeImpl struct {
	table      db.ITable
	replicator replication.IReplicator
	cache      cache.ICache
	opts       Options

	// writes is incremented after every committed local change, before the
	// cache is invalidated. Reads only populate the cache if no write
	// happened while they were reading the table.
	writes atomic.Uint64
}

// NewVersionedStore creates a store on top of table. Writes with replicate=true
// are replicated through replicator; a nil cache disables caching.
func NewVersionedStore(table db.ITable, replicator replication.IReplicator, c cache.ICache, opts Options) store.IStore {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = store.MaxPageSize
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = store.MaxBatchSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = store.ChunkSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if c == nil {
		c = cache.NewNoopCache()
	}
	return &storeImpl{
		table:      table,
		replicator: replicator,
		cache:      c,
		opts:       opts,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(_ context.Context, key string) (store.Entry, error) {
	if err := store.ValidateKey(key); err != nil {
		return store.Entry{}, err
	}
	if entry, ok := s.cache.Get(key); ok {
		return entry, nil
	}

	gen := s.writes.Load()
	var (
		row   db.Row
		found bool
	)
	err := s.table.View(func(tx db.ITx) (err error) {
		row, found, err = tx.Get(key)
		return err
	})
	if err != nil {
		return store.Entry{}, internalError(err, "reading key %q", key)
	}
	if !found {
		return store.Entry{}, store.Errorf(store.RetCNotFound, "key %q not found", key)
	}

	entry := store.EntryFromRow(row)
	if s.writes.Load() == gen {
		s.cache.Set(key, entry, 0)
	}
	return entry, nil
}

func (s *storeImpl) Put(ctx context.Context, key, value string, replicate bool) (store.Entry, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return store.Entry{}, false, err
	}
	if err := store.ValidateValue(value); err != nil {
		return store.Entry{}, false, err
	}

	var (
		row     db.Row
		created bool
		undo    undoRecord
	)
	err := s.table.Update(func(tx db.ITx) error {
		prev, found, err := tx.Get(key)
		if err != nil {
			return err
		}
		now := s.opts.Now()
		if found {
			row, _, err = tx.UpdateValue(key, value, now)
			if err != nil {
				return err
			}
			undo = undoRecord{key: key, prev: &prev, version: row.Version}
			return nil
		}
		row = db.Row{Key: key, Value: value, Version: 1, CreatedAt: now, UpdatedAt: now}
		created = true
		undo = undoRecord{key: key, version: 1}
		return tx.Insert(row)
	})
	if err != nil {
		return store.Entry{}, false, internalError(err, "writing key %q", key)
	}
	s.committed(key)
	recordWrite("put")

	if replicate {
		if err := s.replicate(ctx, replication.NewPutOp(key, value), []undoRecord{undo}); err != nil {
			return store.Entry{}, false, err
		}
	}
	return store.EntryFromRow(row), created, nil
}

func (s *storeImpl) Delete(ctx context.Context, key string, replicate bool) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}

	var (
		removed db.Row
		deleted bool
	)
	err := s.table.Update(func(tx db.ITx) (err error) {
		removed, deleted, err = tx.Delete(key)
		return err
	})
	if err != nil {
		return false, internalError(err, "deleting key %q", key)
	}
	if !deleted {
		return false, nil
	}
	s.committed(key)
	recordWrite("delete")

	if replicate {
		undo := undoRecord{key: key, prev: &removed, deleted: true}
		if err := s.replicate(ctx, replication.NewDeleteOp(key), []undoRecord{undo}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *storeImpl) ReadRange(ctx context.Context, q store.RangeQuery) (store.Page, error) {
	q, err := store.NormalizeRange(q, s.opts.MaxPageSize)
	if err != nil {
		return store.Page{}, err
	}

	// one row more than requested tells whether another page exists
	rows := make([]db.Row, 0, min(q.Limit+1, s.opts.ChunkSize))
	skip := q.Offset
	err = s.table.View(func(tx db.ITx) error {
		return tx.Scan(q.Start, q.End, q.Cursor, func(row db.Row) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			if skip > 0 {
				skip--
				return true, nil
			}
			rows = append(rows, row)
			return len(rows) <= q.Limit, nil
		})
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return store.Page{}, ctxErr
		}
		return store.Page{}, internalError(err, "scanning [%q, %q]", q.Start, q.End)
	}

	page := store.Page{HasMore: len(rows) > q.Limit}
	if page.HasMore {
		rows = rows[:q.Limit]
	}
	page.Entries = make([]store.Entry, len(rows))
	for i, row := range rows {
		page.Entries[i] = store.EntryFromRow(row)
	}
	if page.HasMore && len(rows) > 0 {
		page.NextCursor = rows[len(rows)-1].Key
	}
	return page, nil
}

func (s *storeImpl) Iterate(ctx context.Context, start, end string, fn func(entry store.Entry) error) error {
	if _, err := store.NormalizeRange(store.RangeQuery{Start: start, End: end}, 0); err != nil {
		return err
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := make([]db.Row, 0, s.opts.ChunkSize)
		err := s.table.View(func(tx db.ITx) error {
			return tx.Scan(start, end, cursor, func(row db.Row) (bool, error) {
				chunk = append(chunk, row)
				return len(chunk) < s.opts.ChunkSize, nil
			})
		})
		if err != nil {
			return internalError(err, "scanning [%q, %q]", start, end)
		}

		// fn runs outside the transaction
		for _, row := range chunk {
			if err := fn(store.EntryFromRow(row)); err != nil {
				return err
			}
		}
		if len(chunk) < s.opts.ChunkSize {
			return nil
		}
		cursor = chunk[len(chunk)-1].Key
	}
}

func (s *storeImpl) BatchPut(ctx context.Context, items []store.BatchItem, replicate bool) ([]store.Entry, error) {
	if err := store.ValidateBatch(items, s.opts.MaxBatchSize); err != nil {
		return nil, err
	}

	entries := make([]store.Entry, 0, len(items))
	undos := make([]undoRecord, 0, len(items))
	keys := make([]string, 0, len(items))

	for start := 0; start < len(items); start += s.opts.ChunkSize {
		chunk := items[start:min(start+s.opts.ChunkSize, len(items))]

		var (
			chunkRows  []db.Row
			chunkUndos []undoRecord
		)
		err := s.table.Update(func(tx db.ITx) (err error) {
			chunkRows, chunkUndos, err = s.applyChunk(tx, chunk)
			return err
		})
		if err != nil {
			err = internalError(err, "writing batch chunk at item %d", start)
			if s.opts.StrictBatchRollback && len(undos) > 0 {
				err = s.rollback("batch_put", undos, err)
			}
			return nil, err
		}

		for i, row := range chunkRows {
			entries = append(entries, store.EntryFromRow(row))
			keys = append(keys, chunk[i].Key)
		}
		undos = append(undos, chunkUndos...)
		s.committed(keys[len(keys)-len(chunk):]...)
	}
	recordWrite("batch_put")

	if replicate {
		op := replication.NewBatchPutOp(items)
		if !s.opts.StrictBatchRollback {
			if err := s.replicator.Replicate(ctx, op).Err(); err != nil {
				log.Warningf("batch of %d items failed to replicate, keeping local changes: %v", len(items), err)
				return nil, err
			}
			return entries, nil
		}
		if err := s.replicate(ctx, op, undos); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *storeImpl) GetDBInfo() db.TableInfo {
	return s.table.Info()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// applyChunk writes one chunk of a batch inside tx and returns the written
// rows in input order.
func (s *storeImpl) applyChunk(tx db.ITx, chunk []store.BatchItem) ([]db.Row, []undoRecord, error) {
	keys := make([]string, len(chunk))
	for i, item := range chunk {
		keys[i] = item.Key
	}
	existing, err := tx.GetMany(keys)
	if err != nil {
		return nil, nil, err
	}

	now := s.opts.Now()
	rows := make([]db.Row, len(chunk))
	undos := make([]undoRecord, len(chunk))
	var inserts, updates []db.Row

	for i, item := range chunk {
		if prev, ok := existing[item.Key]; ok {
			row := prev
			row.Value = item.Value
			row.Version = prev.Version + 1
			row.UpdatedAt = now
			rows[i] = row
			undos[i] = undoRecord{key: item.Key, prev: &prev, version: row.Version}
			updates = append(updates, row)
			continue
		}
		rows[i] = db.Row{Key: item.Key, Value: item.Value, Version: 1, CreatedAt: now, UpdatedAt: now}
		undos[i] = undoRecord{key: item.Key, version: 1}
		inserts = append(inserts, rows[i])
	}

	if len(inserts) > 0 {
		if err := tx.Insert(inserts...); err != nil {
			return nil, nil, err
		}
	}
	if len(updates) > 0 {
		if err := tx.Put(updates...); err != nil {
			return nil, nil, err
		}
	}
	return rows, undos, nil
}

// replicate replicates op and compensates the local effects described by
// undos if the quorum was not reached.
func (s *storeImpl) replicate(ctx context.Context, op replication.Operation, undos []undoRecord) error {
	err := s.replicator.Replicate(ctx, op).Err()
	if err == nil {
		return nil
	}
	return s.rollback(op.Kind.String(), undos, err)
}

// rollback compensates undos and returns cause, annotated with the rollback
// error if the compensation failed.
func (s *storeImpl) rollback(op string, undos []undoRecord, cause error) error {
	metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_store_rollbacks_total{op=%q}`, op)).Inc()

	restored, skipped, err := s.compensate(undos)

	keys := make([]string, len(undos))
	for i, u := range undos {
		keys[i] = u.key
	}
	s.committed(keys...)

	if err != nil {
		log.Errorf("rollback of %s (%d keys) failed: %v", op, len(undos), err)
		return errors.WithSecondaryError(cause, err)
	}
	if skipped > 0 {
		log.Warningf("rollback of %s: %d keys were changed concurrently and kept their newer state", op, skipped)
	}
	log.Infof("rolled back %s: %d keys restored after: %v", op, restored, cause)
	return cause
}

// compensate applies undos in chunks of ChunkSize rows per transaction.
func (s *storeImpl) compensate(undos []undoRecord) (restored, skipped int, err error) {
	for start := 0; start < len(undos); start += s.opts.ChunkSize {
		chunk := undos[start:min(start+s.opts.ChunkSize, len(undos))]
		err = s.table.Update(func(tx db.ITx) error {
			for _, u := range chunk {
				ok, err := u.apply(tx)
				if err != nil {
					return err
				}
				if ok {
					restored++
				} else {
					skipped++
				}
			}
			return nil
		})
		if err != nil {
			return restored, skipped, err
		}
	}
	return restored, skipped, nil
}

// committed marks a local change of keys and invalidates their cache entries.
func (s *storeImpl) committed(keys ...string) {
	s.writes.Add(1)
	s.invalidate(keys)
}

func (s *storeImpl) invalidate(keys []string) {
	if len(keys) == 1 {
		s.cache.Invalidate(keys[0])
		return
	}
	s.cache.InvalidateMany(keys)
}

func recordWrite(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_store_writes_total{op=%q}`, op)).Inc()
}

// internalError wraps a table error into a RetCInternalError.
func internalError(err error, format string, args ...interface{}) error {
	if errors.Is(err, db.ErrClosed) {
		return store.Errorf(store.RetCInternalError, "%s: table closed", fmt.Sprintf(format, args...))
	}
	return store.Errorf(store.RetCInternalError, "%s: %v", fmt.Sprintf(format, args...), err)
}
