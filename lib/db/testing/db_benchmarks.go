package testing

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
)

// RunTableBenchmarks runs all benchmarks for a table implementation
func RunTableBenchmarks(b *testing.B, name string, factory TableFactory) {
	b.Run(name+"/Insert", func(b *testing.B) {
		benchmarkInsert(b, factory(b))
	})

	b.Run(name+"/UpdateValue", func(b *testing.B) {
		benchmarkUpdateValue(b, factory(b))
	})

	b.Run(name+"/Get", func(b *testing.B) {
		benchmarkGet(b, factory(b))
	})

	b.Run(name+"/Scan100", func(b *testing.B) {
		benchmarkScan(b, factory(b), 100)
	})

	b.Run(name+"/Scan100AfterCursor", func(b *testing.B) {
		benchmarkScanAfterCursor(b, factory(b), 100)
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func prefill(b *testing.B, table db.ITable, n int) {
	b.Helper()
	now := time.Now()
	err := table.Update(func(tx db.ITx) error {
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("key-%08d", i)
			if err := tx.Put(db.Row{Key: key, Value: "value", Version: 1, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatalf("prefill failed: %v", err)
	}
}

func benchmarkInsert(b *testing.B, table db.ITable) {
	defer table.Close()
	var counter atomic.Uint64
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", counter.Add(1))
		_ = table.Update(func(tx db.ITx) error {
			return tx.Insert(db.Row{Key: key, Value: "value", Version: 1, CreatedAt: now, UpdatedAt: now})
		})
	}
}

func benchmarkUpdateValue(b *testing.B, table db.ITable) {
	defer table.Close()
	prefill(b, table, 1000)
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%08d", i%1000)
		_ = table.Update(func(tx db.ITx) error {
			_, _, err := tx.UpdateValue(key, "updated", now)
			return err
		})
	}
}

func benchmarkGet(b *testing.B, table db.ITable) {
	defer table.Close()
	prefill(b, table, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%08d", i%1000)
			_ = table.View(func(tx db.ITx) error {
				_, _, err := tx.Get(key)
				return err
			})
			i++
		}
	})
}

func benchmarkScan(b *testing.B, table db.ITable, n int) {
	defer table.Close()
	prefill(b, table, 10*n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = table.View(func(tx db.ITx) error {
			seen := 0
			return tx.Scan("key-00000000", "key-99999999", "", func(row db.Row) (bool, error) {
				seen++
				return seen < n, nil
			})
		})
	}
}

// benchmarkScanAfterCursor reads the last page of a large table, its cost must
// not depend on the number of rows before the cursor
func benchmarkScanAfterCursor(b *testing.B, table db.ITable, n int) {
	defer table.Close()
	rows := 100 * n
	prefill(b, table, rows)
	after := fmt.Sprintf("key-%08d", rows-n-1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = table.View(func(tx db.ITx) error {
			seen := 0
			return tx.Scan("key-00000000", "key-99999999", after, func(row db.Row) (bool, error) {
				seen++
				return seen < n, nil
			})
		})
	}
}
