package repos

import (
	"errors"
	"fmt"

	"github.com/gomantics/gitindex/db"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("repository not found")

// Get retrieves the repository indexed at a relative path
func Get(d *db.DB, path string) (*Repository, error) {
	var repo Repository
	err := d.GetRecord(db.RepositoryKey(path), &repo)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read repository %s: %w", path, err)
	}
	return &repo, nil
}

// Upsert stores the full record for a relative path, replacing any
// previous record.
func Upsert(d *db.DB, path string, repo Repository) error {
	return d.Write(func(b *db.Batch) error {
		return b.SetRecord(db.RepositoryKey(path), repo)
	})
}

// List returns every indexed repository ordered by relative path
func List(d *db.DB) ([]Entry, error) {
	var entries []Entry

	err := d.Scan(db.RepositoryPrefix(), func(k, v []byte) error {
		var repo Repository
		if err := db.Unmarshal(v, &repo); err != nil {
			return fmt.Errorf("repository %s: %w", db.RepositoryPath(k), err)
		}
		entries = append(entries, Entry{Path: db.RepositoryPath(k), Repository: repo})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Delete removes a repository and everything indexed under its id
func Delete(d *db.DB, path string, id uuid.UUID) error {
	return d.Write(func(b *db.Batch) error {
		if err := b.Delete(db.RepositoryKey(path)); err != nil {
			return err
		}
		if err := b.DeletePrefix(db.CommitsPrefix(id)); err != nil {
			return err
		}
		if err := b.DeletePrefix(db.TagsPrefix(id)); err != nil {
			return err
		}
		return b.Delete(db.HeadsKey(id))
	})
}

// ReplaceHeads stores the reference names currently valid for a repository
func ReplaceHeads(d *db.DB, id uuid.UUID, heads []string) error {
	if heads == nil {
		heads = []string{}
	}
	return d.Write(func(b *db.Batch) error {
		return b.SetRecord(db.HeadsKey(id), heads)
	})
}

// Heads returns the reference names stored by ReplaceHeads, or an empty
// list when none were stored yet.
func Heads(d *db.DB, id uuid.UUID) ([]string, error) {
	var heads []string
	err := d.GetRecord(db.HeadsKey(id), &heads)
	if errors.Is(err, db.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read heads: %w", err)
	}
	return heads, nil
}
