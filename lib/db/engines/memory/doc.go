// Package memory implements the db.ITable interface with an in-memory B-tree
// (github.com/google/btree). Nothing is persisted.
//
// Read transactions work on a lazy copy-on-write clone of the tree, so a View
// never observes writes committed after it started. Update transactions are
// serialized by a mutex and operate on a clone as well, the clone replaces the
// live tree only if the closure returns without error.
package memory
