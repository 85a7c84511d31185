package vstore

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/bolt"
	"github.com/ValentinKolb/rKV/lib/db/engines/memory"
	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/cache"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test Doubles
// --------------------------------------------------------------------------

// fakeReplicator reports a fixed quorum verdict and records all operations
type fakeReplicator struct {
	mu     sync.Mutex
	quorum bool
	ops    []replication.Operation
	onCall func(op replication.Operation)
}

func (r *fakeReplicator) Replicate(_ context.Context, op replication.Operation) replication.Outcome {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	hook := r.onCall
	r.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	out := replication.Outcome{HasQuorum: r.quorum, Required: 2, Total: 3}
	if r.quorum {
		out.Succeeded = []string{"http://b", "http://c"}
	} else {
		out.Failed = []string{"http://b", "http://c"}
	}
	return out
}

func (r *fakeReplicator) Peers() []string { return []string{"http://b", "http://c"} }

func (r *fakeReplicator) Ops() []replication.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]replication.Operation(nil), r.ops...)
}

// stubPeers answers every request of a peer with a fixed status, 0 means unreachable
type stubPeers map[string]int

func (p stubPeers) answer(peer string) (int, error) {
	if code := p[peer]; code != 0 {
		return code, nil
	}
	return 0, errors.New("connection refused")
}

func (p stubPeers) Put(_ context.Context, peer, _, _ string) (int, error) { return p.answer(peer) }
func (p stubPeers) Delete(_ context.Context, peer, _ string) (int, error) { return p.answer(peer) }
func (p stubPeers) BatchPut(_ context.Context, peer string, _ []store.BatchItem) (int, error) {
	return p.answer(peer)
}
func (p stubPeers) Health(_ context.Context, peer string) (int, error) { return p.answer(peer) }

func newStore(t *testing.T, r replication.IReplicator, opts Options) store.IStore {
	t.Helper()
	table := memory.NewMemoryTable()
	t.Cleanup(func() { _ = table.Close() })
	return NewVersionedStore(table, r, cache.NewLRUCache(cache.Options{}), opts)
}

func okReplicator() *fakeReplicator { return &fakeReplicator{quorum: true} }
func failingReplicator() *fakeReplicator { return &fakeReplicator{quorum: false} }

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

func TestPut_VersionCountsWrites(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		entry, created, err := s.Put(ctx, "counter", fmt.Sprintf("v%d", i), true)
		require.NoError(t, err)
		assert.Equal(t, i == 1, created)
		assert.Equal(t, uint64(i), entry.Version)
	}

	entry, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "v5", entry.Value)
	assert.Equal(t, uint64(5), entry.Version)
	assert.False(t, entry.UpdatedAt.Before(entry.CreatedAt))
}

func TestPut_Timestamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.Now = func() time.Time { return now }
	s := newStore(t, okReplicator(), opts)
	ctx := context.Background()

	first, _, err := s.Put(ctx, "k", "a", false)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	second, _, err := s.Put(ctx, "k", "b", false)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.CreatedAt.Add(time.Minute), second.UpdatedAt)
}

func TestPut_EmptyValueAndValidation(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	ctx := context.Background()

	entry, _, err := s.Put(ctx, "empty", "", true)
	require.NoError(t, err)
	assert.Equal(t, "", entry.Value)

	_, _, err = s.Put(ctx, "", "v", true)
	assert.True(t, store.IsValidation(err))
}

func TestGet_NotFound(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestGet_CacheIsInvalidatedByWrites(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	ctx := context.Background()

	_, _, err := s.Put(ctx, "k", "old", true)
	require.NoError(t, err)

	// warm the cache with the old value
	entry, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "old", entry.Value)

	_, _, err = s.Put(ctx, "k", "new", false)
	require.NoError(t, err)

	entry, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", entry.Value)
	assert.Equal(t, uint64(2), entry.Version)

	_, err = s.Delete(ctx, "k", false)
	require.NoError(t, err)
	_, err = s.Get(ctx, "k")
	assert.True(t, store.IsNotFound(err))
}

func TestReplicateFlag(t *testing.T) {
	r := okReplicator()
	s := newStore(t, r, DefaultOptions())
	ctx := context.Background()

	_, _, err := s.Put(ctx, "a", "1", false)
	require.NoError(t, err)
	_, err = s.Delete(ctx, "a", false)
	require.NoError(t, err)
	_, err = s.BatchPut(ctx, []store.BatchItem{{Key: "b", Value: "2"}}, false)
	require.NoError(t, err)
	assert.Empty(t, r.Ops(), "replicate=false must not contact peers")

	_, _, err = s.Put(ctx, "a", "1", true)
	require.NoError(t, err)
	ops := r.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, replication.NewPutOp("a", "1"), ops[0])
}

func TestDelete(t *testing.T) {
	r := okReplicator()
	s := newStore(t, r, DefaultOptions())
	ctx := context.Background()

	deleted, err := s.Delete(ctx, "missing", true)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Empty(t, r.Ops(), "deleting a missing key must not contact peers")

	_, _, err = s.Put(ctx, "k", "v", false)
	require.NoError(t, err)
	deleted, err = s.Delete(ctx, "k", true)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []replication.Operation{replication.NewDeleteOp("k")}, r.Ops())
}

// --------------------------------------------------------------------------
// Rollback
// --------------------------------------------------------------------------

func TestPut_RollbackRemovesCreatedRow(t *testing.T) {
	s := newStore(t, failingReplicator(), DefaultOptions())
	ctx := context.Background()

	_, _, err := s.Put(ctx, "x", "1", true)
	require.Error(t, err)
	var qErr *store.QuorumError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, 1, qErr.Reached)
	assert.Equal(t, 2, qErr.Required)

	_, err = s.Get(ctx, "x")
	assert.True(t, store.IsNotFound(err), "failed put must leave no trace")
}

func TestPut_RollbackRestoresPreviousRow(t *testing.T) {
	r := okReplicator()
	s := newStore(t, r, DefaultOptions())
	ctx := context.Background()

	_, _, err := s.Put(ctx, "x", "1", true)
	require.NoError(t, err)
	_, err = s.Get(ctx, "x") // cache the row
	require.NoError(t, err)

	r.quorum = false
	_, _, err = s.Put(ctx, "x", "2", true)
	require.True(t, store.IsQuorumFailure(err))

	entry, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "1", entry.Value)
	assert.Equal(t, uint64(1), entry.Version)
}

func TestPut_RollbackKeepsConcurrentWrite(t *testing.T) {
	r := failingReplicator()
	s := newStore(t, r, DefaultOptions())
	ctx := context.Background()

	_, _, err := s.Put(ctx, "x", "base", false)
	require.NoError(t, err)

	// a write that lands while the failing put is being replicated
	r.onCall = func(replication.Operation) {
		r.onCall = nil
		_, _, err := s.Put(ctx, "x", "concurrent", false)
		require.NoError(t, err)
	}

	_, _, err = s.Put(ctx, "x", "doomed", true)
	require.True(t, store.IsQuorumFailure(err))

	entry, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "concurrent", entry.Value)
	assert.Equal(t, uint64(3), entry.Version)
}

func TestDelete_Rollback(t *testing.T) {
	r := okReplicator()
	s := newStore(t, r, DefaultOptions())
	ctx := context.Background()

	created, _, err := s.Put(ctx, "x", "keep", true)
	require.NoError(t, err)

	r.quorum = false
	deleted, err := s.Delete(ctx, "x", true)
	assert.False(t, deleted)
	require.True(t, store.IsQuorumFailure(err))

	entry, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, created, entry)
}

// --------------------------------------------------------------------------
// Replication Scenarios (real coordinator)
// --------------------------------------------------------------------------

func newReplicatedStore(t *testing.T, peers stubPeers) store.IStore {
	urls := []string{"http://b:8080", "http://c:8080"}
	h := replication.NewHealthMonitor(urls, peers, replication.HealthOptions{})
	opts := replication.DefaultOptions()
	opts.RetryDelay = time.Millisecond
	return newStore(t, replication.NewCoordinator(peers, h, opts), DefaultOptions())
}

func TestScenario_OnePeerDown(t *testing.T) {
	s := newReplicatedStore(t, stubPeers{"http://b:8080": http.StatusCreated})
	ctx := context.Background()

	entry, created, err := s.Put(ctx, "x", "1", true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(1), entry.Version)

	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "1", got.Value)
}

func TestScenario_AllPeersDown(t *testing.T) {
	s := newReplicatedStore(t, stubPeers{})
	ctx := context.Background()

	_, _, err := s.Put(ctx, "x", "1", true)
	require.Error(t, err)
	assert.Equal(t, "replication failed, 1/3 nodes reachable (need 2)", err.Error())

	_, err = s.Get(ctx, "x")
	assert.True(t, store.IsNotFound(err))
}

func TestScenario_DeleteAlreadyAbsentOnPeers(t *testing.T) {
	s := newReplicatedStore(t, stubPeers{"http://b:8080": http.StatusNotFound, "http://c:8080": http.StatusNotFound})
	ctx := context.Background()

	_, _, err := s.Put(ctx, "x", "1", false)
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, "x", true)
	require.NoError(t, err)
	assert.True(t, deleted)
}

// --------------------------------------------------------------------------
// Range Reads
// --------------------------------------------------------------------------

func fill(t *testing.T, s store.IStore, n int) []string {
	t.Helper()
	items := make([]store.BatchItem, n)
	keys := make([]string, n)
	for i := range items {
		keys[i] = fmt.Sprintf("key-%04d", i)
		items[i] = store.BatchItem{Key: keys[i], Value: fmt.Sprintf("value-%d", i)}
	}
	_, err := s.BatchPut(context.Background(), items, false)
	require.NoError(t, err)
	return keys
}

func TestReadRange_Bounds(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	keys := fill(t, s, 20)

	page, err := s.ReadRange(context.Background(), store.RangeQuery{Start: keys[5], End: keys[9]})
	require.NoError(t, err)
	require.Len(t, page.Entries, 5)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
	for i, e := range page.Entries {
		assert.Equal(t, keys[5+i], e.Key)
	}
}

func TestReadRange_CursorPaginationHasNoGapsOrDuplicates(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	keys := fill(t, s, 53)

	for _, pageSize := range []int{1, 7, 10, 53, 100} {
		t.Run(fmt.Sprintf("page_%d", pageSize), func(t *testing.T) {
			var seen []string
			cursor := ""
			for pages := 0; ; pages++ {
				require.Less(t, pages, 100, "pagination does not terminate")
				page, err := s.ReadRange(context.Background(), store.RangeQuery{
					Start: "key-", End: "key-9999", Limit: pageSize, Cursor: cursor,
				})
				require.NoError(t, err)
				assert.LessOrEqual(t, len(page.Entries), pageSize)
				for _, e := range page.Entries {
					seen = append(seen, e.Key)
				}
				if !page.HasMore {
					break
				}
				assert.Equal(t, page.Entries[len(page.Entries)-1].Key, page.NextCursor)
				cursor = page.NextCursor
			}
			assert.Equal(t, keys, seen)
		})
	}
}

func TestReadRange_Offset(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	keys := fill(t, s, 10)

	page, err := s.ReadRange(context.Background(), store.RangeQuery{Start: keys[0], End: keys[9], Limit: 3, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, keys[4], page.Entries[0].Key)
	assert.True(t, page.HasMore)
	assert.Equal(t, keys[6], page.NextCursor)
}

func TestReadRange_LimitIsCapped(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPageSize = 4
	s := newStore(t, okReplicator(), opts)
	fill(t, s, 10)

	page, err := s.ReadRange(context.Background(), store.RangeQuery{Start: "a", End: "z", Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 4)
	assert.True(t, page.HasMore)
}

func TestReadRange_Validation(t *testing.T) {
	s := newStore(t, okReplicator(), DefaultOptions())
	_, err := s.ReadRange(context.Background(), store.RangeQuery{Start: "z", End: "a"})
	assert.True(t, store.IsValidation(err))
}

func TestIterate_Chunks(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 4
	s := newStore(t, okReplicator(), opts)
	keys := fill(t, s, 17)

	var seen []string
	err := s.Iterate(context.Background(), "key-", "key-9999", func(e store.Entry) error {
		seen = append(seen, e.Key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, keys, seen)

	stop := errors.New("stop")
	count := 0
	err = s.Iterate(context.Background(), "key-", "key-9999", func(store.Entry) error {
		count++
		if count == 6 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 6, count)
}

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

func TestBatchPut_MixedInsertAndUpdate(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 2
	r := okReplicator()
	s := newStore(t, r, opts)
	ctx := context.Background()

	_, _, err := s.Put(ctx, "b", "old", false)
	require.NoError(t, err)

	items := []store.BatchItem{{Key: "c", Value: "3"}, {Key: "b", Value: "2"}, {Key: "a", Value: "1"}}
	entries, err := s.BatchPut(ctx, items, true)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, item := range items {
		assert.Equal(t, item.Key, entries[i].Key, "entries must be in input order")
		assert.Equal(t, item.Value, entries[i].Value)
	}
	assert.Equal(t, uint64(1), entries[0].Version)
	assert.Equal(t, uint64(2), entries[1].Version)

	ops := r.Ops()
	require.Len(t, ops, 1, "a batch replicates once with the full item list")
	assert.Equal(t, items, ops[0].Items)
}

func TestBatchPut_Validation(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxBatchSize = 3
	s := newStore(t, okReplicator(), opts)
	ctx := context.Background()

	_, err := s.BatchPut(ctx, []store.BatchItem{{Key: "a"}, {Key: "a"}}, true)
	assert.True(t, store.IsValidation(err))

	_, err = s.BatchPut(ctx, []store.BatchItem{{Key: "a"}, {Key: "b"}, {Key: "c"}, {Key: "d"}}, true)
	assert.Equal(t, store.RetCBatchTooLarge, store.CodeOf(err))

	assert.Equal(t, 0, s.GetDBInfo().Rows, "rejected batches must not touch storage")
}

func TestBatchPut_StrictRollback(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 2
	r := failingReplicator()
	s := newStore(t, r, opts)
	ctx := context.Background()

	_, _, err := s.Put(ctx, "b", "before", false)
	require.NoError(t, err)

	items := []store.BatchItem{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}
	_, err = s.BatchPut(ctx, items, true)
	require.True(t, store.IsQuorumFailure(err))

	_, err = s.Get(ctx, "a")
	assert.True(t, store.IsNotFound(err))
	_, err = s.Get(ctx, "c")
	assert.True(t, store.IsNotFound(err))
	entry, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "before", entry.Value)
	assert.Equal(t, uint64(1), entry.Version)
}

func TestBatchPut_LegacyKeepsCommittedChunks(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 2
	opts.StrictBatchRollback = false
	s := newStore(t, failingReplicator(), opts)
	ctx := context.Background()

	items := []store.BatchItem{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}
	_, err := s.BatchPut(ctx, items, true)
	require.True(t, store.IsQuorumFailure(err))
	assert.Equal(t, 3, s.GetDBInfo().Rows)
}

// flakyTable fails a single Update transaction after allow successful ones
type flakyTable struct {
	db.ITable
	mu    sync.Mutex
	allow int // < 0 never fails
}

func (f *flakyTable) failAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allow = n
}

func (f *flakyTable) Update(fn func(tx db.ITx) error) error {
	f.mu.Lock()
	switch {
	case f.allow == 0:
		f.allow = -1
		f.mu.Unlock()
		return errors.New("disk full")
	case f.allow > 0:
		f.allow--
	}
	f.mu.Unlock()
	return f.ITable.Update(fn)
}

func newFlakyStore(t *testing.T, r replication.IReplicator, opts Options) (store.IStore, *flakyTable) {
	t.Helper()
	table := &flakyTable{ITable: memory.NewMemoryTable(), allow: -1}
	t.Cleanup(func() { _ = table.Close() })
	return NewVersionedStore(table, r, cache.NewLRUCache(cache.Options{}), opts), table
}

func TestBatchPut_StrictRollbackOnChunkFailure(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 2
	r := okReplicator()
	s, table := newFlakyStore(t, r, opts)
	ctx := context.Background()

	_, _, err := s.Put(ctx, "b", "before", false)
	require.NoError(t, err)

	// the first chunk (a, b) commits, the second (c) fails
	table.failAfter(1)
	items := []store.BatchItem{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}
	_, err = s.BatchPut(ctx, items, true)
	require.Error(t, err)
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))

	_, err = s.Get(ctx, "a")
	assert.True(t, store.IsNotFound(err))
	_, err = s.Get(ctx, "c")
	assert.True(t, store.IsNotFound(err))
	entry, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "before", entry.Value)
	assert.Equal(t, uint64(1), entry.Version)

	assert.Equal(t, 1, s.GetDBInfo().Rows)
	assert.Empty(t, r.Ops(), "a failed batch must not be replicated")
}

func TestBatchPut_LegacyKeepsChunksBeforeChunkFailure(t *testing.T) {
	opts := DefaultOptions()
	opts.ChunkSize = 2
	opts.StrictBatchRollback = false
	r := okReplicator()
	s, table := newFlakyStore(t, r, opts)
	ctx := context.Background()

	table.failAfter(1)
	items := []store.BatchItem{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}
	_, err := s.BatchPut(ctx, items, true)
	require.Error(t, err)
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))

	for _, key := range []string{"a", "b"} {
		entry, err := s.Get(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, uint64(1), entry.Version)
	}
	_, err = s.Get(ctx, "c")
	assert.True(t, store.IsNotFound(err))

	assert.Equal(t, 2, s.GetDBInfo().Rows)
	assert.Empty(t, r.Ops())
}

func TestBoltBackedStore(t *testing.T) {
	table, err := bolt.NewBoltTable(t.TempDir(), &bolt.Options{NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	s := NewVersionedStore(table, failingReplicator(), nil, DefaultOptions())
	ctx := context.Background()

	_, _, err = s.Put(ctx, "x", "1", false)
	require.NoError(t, err)
	_, _, err = s.Put(ctx, "x", "2", true)
	require.True(t, store.IsQuorumFailure(err))

	entry, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "1", entry.Value)
	assert.Equal(t, uint64(1), entry.Version)
	assert.Equal(t, db.ImplBolt, s.GetDBInfo().DbType)
}

func TestClosedTable(t *testing.T) {
	table := memory.NewMemoryTable()
	s := NewVersionedStore(table, okReplicator(), nil, DefaultOptions())
	require.NoError(t, table.Close())

	_, _, err := s.Put(context.Background(), "k", "v", true)
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))
}
