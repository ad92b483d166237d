package store

import (
	badger "github.com/dgraph-io/badger/v2"
)

// RunIterator returns the ids of entries whose run predicate equals runID, every id
// when runID is empty. limit <= 0 means no limit.
func RunIterator(txn *badger.Txn, runID string, limit int) ([][]byte, error) {
	ids := make([][]byte, 0)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("run:")})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if limit > 0 && len(ids) == limit {
			break
		}

		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}

		run, err := DecodeString(val)
		if err != nil {
			return nil, err
		}

		if runID == "" || run == runID {
			ids = append(ids, GetID(item.KeyCopy(nil)))
		}
	}
	return ids, nil
}

// RunCounts of stored entries per run
func RunCounts(txn *badger.Txn) (map[string]int, error) {
	counts := make(map[string]int)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("run:")})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		run, err := DecodeString(val)
		if err != nil {
			return nil, err
		}
		counts[run]++
	}
	return counts, nil
}
