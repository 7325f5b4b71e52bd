package commits

import (
	"errors"
	"fmt"

	"github.com/gomantics/gitindex/db"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("commit not found")

// Tree is the append-only commit log of one reference. Entries [0, Len())
// hold the reference history oldest first.
type Tree struct {
	d         *db.DB
	id        uuid.UUID
	reference string
}

// NewTree addresses the commit tree of a repository reference
func NewTree(d *db.DB, id uuid.UUID, reference string) *Tree {
	return &Tree{d: d, id: id, reference: reference}
}

// Reference returns the full reference name of the tree
func (t *Tree) Reference() string {
	return t.reference
}

// Len returns the number of indexed commits
func (t *Tree) Len() (uint64, error) {
	v, err := t.d.Get(db.CommitCounterKey(t.id, t.reference))
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter of %s: %w", t.reference, err)
	}
	return db.DecodeUint64(v)
}

// Get returns the commit at a sequence number
func (t *Tree) Get(seq uint64) (*Commit, error) {
	var c Commit
	err := t.d.GetRecord(db.CommitKey(t.id, t.reference, seq), &c)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %d of %s: %w", seq, t.reference, err)
	}
	return &c, nil
}

// Latest returns the most recently indexed commit, or nil for an empty tree
func (t *Tree) Latest() (*Commit, error) {
	n, err := t.Len()
	if err != nil || n == 0 {
		return nil, err
	}

	c, err := t.Get(n - 1)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: counter of %s is %d but the last commit is missing", db.ErrCorrupt, t.reference, n)
	}
	return c, err
}

// Page returns up to limit commits starting at sequence number offset
func (t *Tree) Page(offset uint64, limit int) ([]Commit, error) {
	var out []Commit

	prefix := db.CommitEntriesPrefix(t.id, t.reference)
	start := db.CommitKey(t.id, t.reference, offset)
	err := t.d.ScanFrom(prefix, start, limit, func(_, v []byte) error {
		var c Commit
		if err := db.Unmarshal(v, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read commits of %s: %w", t.reference, err)
	}

	return out, nil
}

// Drop deletes every commit of the tree and resets its counter
func (t *Tree) Drop() error {
	return t.d.Write(func(b *db.Batch) error {
		return b.DeletePrefix(db.CommitTreePrefix(t.id, t.reference))
	})
}

// Insert stages a commit at a sequence number
func (t *Tree) Insert(b *db.Batch, seq uint64, c Commit) error {
	return b.SetRecord(db.CommitKey(t.id, t.reference, seq), c)
}

// SetLen stages the counter. It belongs in the same batch as the commits
// it counts.
func (t *Tree) SetLen(b *db.Batch, n uint64) error {
	return b.Set(db.CommitCounterKey(t.id, t.reference), db.EncodeUint64(n))
}

// WriteChunk applies fn atomically without syncing the log
func (t *Tree) WriteChunk(fn func(b *db.Batch) error) error {
	return t.d.WriteNoSync(fn)
}
