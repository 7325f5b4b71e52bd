package db

import (
	"github.com/cockroachdb/pebble"
)

// Batch collects writes that are applied to the store atomically
type Batch struct {
	b *pebble.Batch
}

// Set stores value at key, replacing any previous value
func (b *Batch) Set(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Batch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

// DeletePrefix removes every key starting with prefix
func (b *Batch) DeletePrefix(prefix []byte) error {
	return b.b.DeleteRange(prefix, PrefixEnd(prefix), nil)
}

// Empty reports whether the batch holds no writes
func (b *Batch) Empty() bool {
	return b.b.Empty()
}

// Write runs fn against a new batch and commits it with a synced log write.
// Nothing is written if fn fails or adds nothing.
func (d *DB) Write(fn func(*Batch) error) error {
	return d.write(pebble.Sync, fn)
}

// WriteNoSync is Write without waiting for the log to reach disk. Batches
// stay atomic; durability is recovered by Flush.
func (d *DB) WriteNoSync(fn func(*Batch) error) error {
	return d.write(pebble.NoSync, fn)
}

func (d *DB) write(opts *pebble.WriteOptions, fn func(*Batch) error) error {
	b := &Batch{b: d.p.NewBatch()}
	defer b.b.Close()

	if err := fn(b); err != nil {
		return err
	}

	if b.Empty() {
		return nil
	}

	return b.b.Commit(opts)
}
