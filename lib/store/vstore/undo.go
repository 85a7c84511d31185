package vstore

import "github.com/ValentinKolb/rKV/lib/db"

// undoRecord describes how to revert one committed local change.
type undoRecord struct {
	key string
	// prev is the row before the change, nil if the change created the row.
	prev *db.Row
	// version is the version the change wrote (unused for deletes).
	version uint64
	// deleted is set if the change removed prev.
	deleted bool
}

// apply reverts the change inside tx. It returns false without writing if
// the key was changed again after the change being reverted.
func (u undoRecord) apply(tx db.ITx) (bool, error) {
	cur, found, err := tx.Get(u.key)
	if err != nil {
		return false, err
	}

	if u.deleted {
		if found {
			return false, nil
		}
		return true, tx.Insert(*u.prev)
	}

	if !found || cur.Version != u.version {
		return false, nil
	}
	if u.prev == nil {
		_, _, err = tx.Delete(u.key)
		return true, err
	}
	return true, tx.Put(*u.prev)
}
