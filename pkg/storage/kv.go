package storage

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// NotFound is returned when a key does not exist.
var NotFound = errors.New("[storage] - not found")

// Txn is a set of reads and writes that are applied atomically on Commit.
type Txn = *pebble.Batch

// BeginTxn opens an indexed batch, so reads inside the transaction observe its
// own writes.
func BeginTxn(db *pebble.DB) Txn { return db.NewIndexedBatch() }

// Get decodes the JSON value stored under key into v.
func Get(r pebble.Reader, key []byte, v interface{}) error {
	b, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return errors.Wrapf(NotFound, "key %q", key)
	}
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	return errors.Wrapf(json.Unmarshal(b, v), "[storage] - decode %q", key)
}

// Exists returns true if key is present.
func Exists(r pebble.Reader, key []byte) (bool, error) {
	_, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

// Set stores the JSON encoding of v under key.
func Set(w pebble.Writer, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "[storage] - encode %q", key)
	}
	return w.Set(key, b, pebble.Sync)
}

// Delete removes key.
func Delete(w pebble.Writer, key []byte) error { return w.Delete(key, pebble.Sync) }

// Iterate calls f for every key with the given prefix in key order, stopping at
// the first error.
func Iterate(r pebble.Reader, prefix []byte, f func(key, value []byte) error) (err error) {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, iter.Close()) }()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := f(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// PrefixEnd returns the smallest key greater than every key with prefix.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
