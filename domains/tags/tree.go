package tags

import (
	"errors"
	"fmt"

	"github.com/gomantics/gitindex/db"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("tag not found")

// Tree maps tag reference names of one repository to tag records
type Tree struct {
	d  *db.DB
	id uuid.UUID
}

// NewTree addresses the tag tree of a repository
func NewTree(d *db.DB, id uuid.UUID) *Tree {
	return &Tree{d: d, id: id}
}

// List returns the indexed tag reference names in key order
func (t *Tree) List() ([]string, error) {
	var names []string
	err := t.d.Scan(db.TagsPrefix(t.id), func(k, _ []byte) error {
		names = append(names, db.TagName(k))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return names, nil
}

// Get returns the tag stored under a reference name
func (t *Tree) Get(name string) (*Tag, error) {
	var tag Tag
	err := t.d.GetRecord(db.TagKey(t.id, name), &tag)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tag %s: %w", name, err)
	}
	return &tag, nil
}

// Insert stores a tag record
func (t *Tree) Insert(name string, tag Tag) error {
	return t.d.Write(func(b *db.Batch) error {
		return b.SetRecord(db.TagKey(t.id, name), tag)
	})
}

// Remove deletes a tag record
func (t *Tree) Remove(name string) error {
	return t.d.Write(func(b *db.Batch) error {
		return b.Delete(db.TagKey(t.id, name))
	})
}
