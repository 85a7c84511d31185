package memory

import (
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	dbtesting "github.com/ValentinKolb/rKV/lib/db/testing"
)

func newTestTable(testing.TB) db.ITable {
	return NewMemoryTable()
}

func Test(t *testing.T) {
	dbtesting.RunTableTests(t, "MemoryTable", newTestTable)
}

func Benchmark(b *testing.B) {
	dbtesting.RunTableBenchmarks(b, "MemoryTable", newTestTable)
}

func TestViewIsSnapshot(t *testing.T) {
	table := NewMemoryTable()
	defer table.Close()
	now := time.Now()

	if err := table.Update(func(tx db.ITx) error {
		return tx.Insert(db.Row{Key: "a", Value: "1", Version: 1, CreatedAt: now, UpdatedAt: now})
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	err := table.View(func(tx db.ITx) error {
		// a write committed while the view is open must not change the view
		if err := table.Update(func(wtx db.ITx) error {
			_, _, err := wtx.UpdateValue("a", "2", now)
			return err
		}); err != nil {
			return err
		}
		row, _, err := tx.Get("a")
		if err != nil {
			return err
		}
		if row.Value != "1" {
			t.Errorf("expected snapshot value 1, got %q", row.Value)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}

	if info := table.Info(); info.Rows != 1 || info.DbType != db.ImplMemory {
		t.Errorf("unexpected info: %+v", info)
	}
}
