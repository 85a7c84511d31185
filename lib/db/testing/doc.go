// Package testing provides standardised tests and benchmarks for
// table implementations that satisfy the db.ITable interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the ITable interface contract
//   - benchmark: Performance tests for measuring throughput of common table operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t testing.TB) db.ITable {
//		return NewMyTable(t.TempDir())
//	}
//
//	// Running the standard test suite
//	dbtesting.RunTableTests(t, "MyTable", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunTableBenchmarks(b, "MyTable", factory)
package testing
