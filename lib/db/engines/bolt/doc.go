// Package bolt implements the db.ITable interface on top of bbolt
// (go.etcd.io/bbolt), an embedded, transactional B+tree key/value file.
//
// All rows live in a single bucket named "entries". The bucket key is the
// entry key, the bucket value is the JSON encoded db.Row. Since bbolt orders
// keys byte-wise, Scan visits rows in lexicographic key order using a bucket
// cursor, which keeps memory usage independent of the size of the range.
//
// Transactions map one to one: View opens a read-only bbolt transaction and
// Update a read-write transaction. bbolt allows a single writer at a time,
// which is what makes UpdateValue an atomic conditional update.
//
// Usage Example:
//
//	table, err := bolt.NewBoltTable("data", nil)
//	if err != nil {
//		panic(err)
//	}
//	defer table.Close()
package bolt
