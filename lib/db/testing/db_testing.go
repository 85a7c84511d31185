package testing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/cockroachdb/errors"
)

// TableFactory is a function that creates a new, empty instance of an ITable implementation
type TableFactory func(t testing.TB) db.ITable

// RunTableTests runs a comprehensive test suite for an ITable implementation.
func RunTableTests(t *testing.T, name string, factory TableFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("InsertGet", func(t *testing.T) {
			testInsertGet(t, factory(t))
		})

		t.Run("DuplicateKey", func(t *testing.T) {
			testDuplicateKey(t, factory(t))
		})

		t.Run("UpdateValue", func(t *testing.T) {
			testUpdateValue(t, factory(t))
		})

		t.Run("PutDelete", func(t *testing.T) {
			testPutDelete(t, factory(t))
		})

		t.Run("GetMany", func(t *testing.T) {
			testGetMany(t, factory(t))
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory(t))
		})

		t.Run("ScanStop", func(t *testing.T) {
			testScanStop(t, factory(t))
		})

		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, factory(t))
		})

		t.Run("ReadOnlyView", func(t *testing.T) {
			testReadOnlyView(t, factory(t))
		})

		t.Run("ConcurrentUpdateValue", func(t *testing.T) {
			testConcurrentUpdateValue(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newRow(key, value string) db.Row {
	return db.Row{Key: key, Value: value, Version: 1, CreatedAt: testTime, UpdatedAt: testTime}
}

func mustInsert(t *testing.T, table db.ITable, rows ...db.Row) {
	t.Helper()
	if err := table.Update(func(tx db.ITx) error { return tx.Insert(rows...) }); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

func mustGet(t *testing.T, table db.ITable, key string) (db.Row, bool) {
	t.Helper()
	var row db.Row
	var found bool
	err := table.View(func(tx db.ITx) (err error) {
		row, found, err = tx.Get(key)
		return err
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return row, found
}

func scanKeys(t *testing.T, table db.ITable, start, end, after string) []string {
	t.Helper()
	var keys []string
	err := table.View(func(tx db.ITx) error {
		return tx.Scan(start, end, after, func(row db.Row) (bool, error) {
			keys = append(keys, row.Key)
			return true, nil
		})
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertGet(t *testing.T, table db.ITable) {
	defer table.Close()

	mustInsert(t, table, newRow("alpha", "first"))

	row, found := mustGet(t, table, "alpha")
	if !found {
		t.Fatalf("Expected key alpha to exist after Insert")
	}
	if row.Value != "first" || row.Version != 1 {
		t.Errorf("Expected value first with version 1, got %q version %d", row.Value, row.Version)
	}
	if !row.CreatedAt.Equal(testTime) || !row.UpdatedAt.Equal(testTime) {
		t.Errorf("Expected timestamps to be preserved, got %v / %v", row.CreatedAt, row.UpdatedAt)
	}

	if _, found := mustGet(t, table, "missing"); found {
		t.Errorf("Expected missing key to return found=false")
	}

	// empty values are valid
	mustInsert(t, table, newRow("empty", ""))
	if row, found := mustGet(t, table, "empty"); !found || row.Value != "" {
		t.Errorf("Expected empty value to round trip, got %+v (found=%v)", row, found)
	}
}

func testDuplicateKey(t *testing.T, table db.ITable) {
	defer table.Close()

	mustInsert(t, table, newRow("dup", "1"))

	err := table.Update(func(tx db.ITx) error { return tx.Insert(newRow("dup", "2")) })
	if !errors.Is(err, db.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	row, _ := mustGet(t, table, "dup")
	if row.Value != "1" {
		t.Errorf("Expected original value to survive a duplicate insert, got %q", row.Value)
	}
}

func testUpdateValue(t *testing.T, table db.ITable) {
	defer table.Close()

	mustInsert(t, table, newRow("k", "v1"))
	later := testTime.Add(time.Minute)

	var updated db.Row
	var matched bool
	err := table.Update(func(tx db.ITx) (err error) {
		updated, matched, err = tx.UpdateValue("k", "v2", later)
		return err
	})
	if err != nil {
		t.Fatalf("UpdateValue failed: %v", err)
	}
	if !matched {
		t.Fatalf("Expected UpdateValue to match existing row")
	}
	if updated.Version != 2 || updated.Value != "v2" {
		t.Errorf("Expected v2 with version 2, got %q version %d", updated.Value, updated.Version)
	}
	if !updated.UpdatedAt.Equal(later) || !updated.CreatedAt.Equal(testTime) {
		t.Errorf("Expected updated_at to move and created_at to stay, got %+v", updated)
	}

	err = table.Update(func(tx db.ITx) (err error) {
		_, matched, err = tx.UpdateValue("absent", "v", later)
		return err
	})
	if err != nil {
		t.Fatalf("UpdateValue failed: %v", err)
	}
	if matched {
		t.Errorf("Expected UpdateValue on absent key to report matched=false")
	}
	if _, found := mustGet(t, table, "absent"); found {
		t.Errorf("UpdateValue must not create rows")
	}
}

func testPutDelete(t *testing.T, table db.ITable) {
	defer table.Close()

	row := newRow("p", "v")
	row.Version = 7
	if err := table.Update(func(tx db.ITx) error { return tx.Put(row) }); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got, _ := mustGet(t, table, "p"); got.Version != 7 {
		t.Errorf("Expected Put to keep the given version, got %d", got.Version)
	}

	var deleted db.Row
	var ok bool
	err := table.Update(func(tx db.ITx) (err error) {
		deleted, ok, err = tx.Delete("p")
		return err
	})
	if err != nil || !ok {
		t.Fatalf("Delete failed: ok=%v err=%v", ok, err)
	}
	if deleted.Value != "v" || deleted.Version != 7 {
		t.Errorf("Expected Delete to return the removed row, got %+v", deleted)
	}
	if _, found := mustGet(t, table, "p"); found {
		t.Errorf("Expected key to be gone after Delete")
	}

	err = table.Update(func(tx db.ITx) (err error) {
		_, ok, err = tx.Delete("p")
		return err
	})
	if err != nil || ok {
		t.Errorf("Expected second Delete to report deleted=false, got ok=%v err=%v", ok, err)
	}
}

func testGetMany(t *testing.T, table db.ITable) {
	defer table.Close()

	mustInsert(t, table, newRow("a", "1"), newRow("b", "2"), newRow("c", "3"))

	var rows map[string]db.Row
	err := table.View(func(tx db.ITx) (err error) {
		rows, err = tx.GetMany([]string{"a", "c", "x"})
		return err
	})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows["a"].Value != "1" || rows["c"].Value != "3" {
		t.Errorf("Unexpected rows: %+v", rows)
	}
}

func testScan(t *testing.T, table db.ITable) {
	defer table.Close()

	// insert in random order, scan must be sorted
	for _, k := range []string{"d", "b", "a", "e", "c", "ba", "f"} {
		mustInsert(t, table, newRow(k, k))
	}

	tests := []struct {
		start, end, after string
		want              []string
	}{
		{"a", "c", "", []string{"a", "b", "ba", "c"}},
		{"b", "b", "", []string{"b"}},
		{"a", "z", "c", []string{"d", "e", "f"}},
		{"b", "e", "a", []string{"b", "ba", "c", "d", "e"}},
		{"b", "e", "ba", []string{"c", "d", "e"}},
		{"x", "z", "", nil},
		{"a", "f", "f", nil},
		{"a", "z", "bb", []string{"c", "d", "e", "f"}},
		{"a", "c", "d", nil},
		{"c", "e", "b", []string{"c", "d", "e"}},
	}
	for _, tc := range tests {
		got := scanKeys(t, table, tc.start, tc.end, tc.after)
		if !equalKeys(got, tc.want) {
			t.Errorf("Scan(%q, %q, after=%q) = %v, want %v", tc.start, tc.end, tc.after, got, tc.want)
		}
	}
}

func testScanStop(t *testing.T, table db.ITable) {
	defer table.Close()

	for i := 0; i < 50; i++ {
		mustInsert(t, table, newRow(fmt.Sprintf("key-%03d", i), "v"))
	}

	visited := 0
	err := table.View(func(tx db.ITx) error {
		return tx.Scan("key-000", "key-999", "", func(row db.Row) (bool, error) {
			visited++
			return visited < 10, nil
		})
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if visited != 10 {
		t.Errorf("Expected scan to stop after 10 rows, visited %d", visited)
	}

	stop := errors.New("stop")
	err = table.View(func(tx db.ITx) error {
		return tx.Scan("key-000", "key-999", "", func(row db.Row) (bool, error) {
			return true, stop
		})
	})
	if !errors.Is(err, stop) {
		t.Errorf("Expected callback error to be returned, got %v", err)
	}
}

func testRollback(t *testing.T, table db.ITable) {
	defer table.Close()

	mustInsert(t, table, newRow("keep", "v1"))

	boom := errors.New("boom")
	err := table.Update(func(tx db.ITx) error {
		if err := tx.Insert(newRow("new", "x")); err != nil {
			return err
		}
		if _, _, err := tx.UpdateValue("keep", "v2", testTime); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected closure error, got %v", err)
	}

	if _, found := mustGet(t, table, "new"); found {
		t.Errorf("Insert of an aborted transaction must not be visible")
	}
	if row, _ := mustGet(t, table, "keep"); row.Value != "v1" || row.Version != 1 {
		t.Errorf("Update of an aborted transaction must not be visible, got %+v", row)
	}
}

func testReadOnlyView(t *testing.T, table db.ITable) {
	defer table.Close()

	err := table.View(func(tx db.ITx) error { return tx.Insert(newRow("ro", "v")) })
	if err == nil {
		t.Errorf("Expected write inside View to fail")
	}
	if _, found := mustGet(t, table, "ro"); found {
		t.Errorf("Write inside View must not be visible")
	}
}

func testConcurrentUpdateValue(t *testing.T, table db.ITable) {
	defer table.Close()

	mustInsert(t, table, newRow("counter", "0"))

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := table.Update(func(tx db.ITx) error {
					_, _, err := tx.UpdateValue("counter", fmt.Sprintf("%d-%d", w, i), testTime)
					return err
				})
				if err != nil {
					t.Errorf("UpdateValue failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	row, _ := mustGet(t, table, "counter")
	if want := uint64(1 + workers*perWorker); row.Version != want {
		t.Errorf("Expected version %d after concurrent updates, got %d", want, row.Version)
	}
}

func testClosed(t *testing.T, table db.ITable) {
	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	err := table.View(func(tx db.ITx) error { return nil })
	if !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}
