package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

const (
	BranchPrefix = "refs/heads/"
	TagPrefix    = "refs/tags/"

	// maxPeelDepth bounds tag-of-tag chains
	maxPeelDepth = 16
)

var (
	ErrNotFound  = errors.New("repository not found")
	ErrNotCommit = errors.New("reference does not point at a commit")
)

// Repository is an opened bare repository
type Repository struct {
	path string
	repo *git.Repository
}

// Open opens the repository at path. A missing repository is reported as
// ErrNotFound, every other failure is returned as is.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", path, err)
	}

	return &Repository{path: path, repo: repo}, nil
}

// IsIndexable reports whether a reference name is a branch or a tag
func IsIndexable(name string) bool {
	return strings.HasPrefix(name, BranchPrefix) || strings.HasPrefix(name, TagPrefix)
}

// IsTag reports whether a reference name is a tag
func IsTag(name string) bool {
	return strings.HasPrefix(name, TagPrefix)
}

// References lists every reference of the repository
func (r *Repository) References() ([]*plumbing.Reference, error) {
	iter, err := r.repo.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer iter.Close()

	var refs []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	return refs, nil
}

// Resolve follows symbolic references down to an object id
func (r *Repository) Resolve(name string) (plumbing.Hash, error) {
	ref, err := r.repo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	return ref.Hash(), nil
}

// PeelToCommit resolves a reference to the commit it ultimately points at,
// following annotated tags.
func (r *Repository) PeelToCommit(name string) (*object.Commit, error) {
	h, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	for range maxPeelDepth {
		obj, err := r.repo.Object(plumbing.AnyObject, h)
		if err != nil {
			return nil, fmt.Errorf("failed to read object %s of %s: %w", h, name, err)
		}

		switch o := obj.(type) {
		case *object.Commit:
			return o, nil
		case *object.Tag:
			h = o.Target
		default:
			return nil, fmt.Errorf("%w: %s is a %s", ErrNotCommit, name, obj.Type())
		}
	}

	return nil, fmt.Errorf("%w: %s nests more than %d tags", ErrNotCommit, name, maxPeelDepth)
}

// PeelToTag returns the annotated tag object a reference points at. ok is
// false for lightweight references, which point straight at a commit.
func (r *Repository) PeelToTag(name string) (tag *object.Tag, ok bool, err error) {
	h, err := r.Resolve(name)
	if err != nil {
		return nil, false, err
	}

	tag, err = r.repo.TagObject(h)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read tag %s: %w", name, err)
	}

	return tag, true, nil
}

// Commit reads a single commit
func (r *Repository) Commit(h plumbing.Hash) (*object.Commit, error) {
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", h, err)
	}
	return c, nil
}

// WalkOldestFirst returns every commit reachable from tip, oldest first.
// The order is committer time order reversed, so it is stable for a given
// history.
func (r *Repository) WalkOldestFirst(tip plumbing.Hash) ([]plumbing.Hash, error) {
	iter, err := r.repo.Log(&git.LogOptions{
		From:  tip,
		Order: git.LogOrderCommitterTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history from %s: %w", tip, err)
	}
	defer iter.Close()

	var hashes []plumbing.Hash
	err = iter.ForEach(func(c *object.Commit) error {
		hashes = append(hashes, c.Hash)
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("failed to walk history from %s: %w", tip, err)
	}

	slices.Reverse(hashes)
	return hashes, nil
}

// LastCommittedTime returns the newest committer time among all commits
// reachable from any reference, or the Unix epoch when there are none.
// References that do not peel to a commit are ignored, and missing parents
// end the walk. On error the newest time found so far is returned.
func (r *Repository) LastCommittedTime() (time.Time, error) {
	latest := time.Unix(0, 0).UTC()

	refs, err := r.References()
	if err != nil {
		return latest, err
	}

	seen := make(map[plumbing.Hash]struct{})
	var queue []*object.Commit
	for _, ref := range refs {
		c, err := r.PeelToCommit(ref.Name().String())
		if err != nil {
			continue
		}
		if _, ok := seen[c.Hash]; !ok {
			seen[c.Hash] = struct{}{}
			queue = append(queue, c)
		}
	}

	for len(queue) > 0 {
		c := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if when := c.Committer.When; when.After(latest) {
			latest = when
		}

		for _, p := range c.ParentHashes {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}

			parent, err := r.Commit(p)
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				// shallow or partial clones end their history here
				continue
			}
			if err != nil {
				return latest, err
			}
			queue = append(queue, parent)
		}
	}

	return latest, nil
}

// DefaultBranch returns the reference HEAD points at. ok is false for a
// detached or unborn HEAD.
func (r *Repository) DefaultBranch() (name string, ok bool) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil || head.Type() != plumbing.SymbolicReference {
		return "", false
	}

	if _, err := r.repo.Reference(head.Target(), true); err != nil {
		return "", false
	}

	return head.Target().String(), true
}

// ReadDescription reads the free-text description file of the repository
// at path. A missing, unreadable or empty file yields ok == false.
func ReadDescription(path string) (desc string, ok bool) {
	data, err := os.ReadFile(filepath.Join(path, "description"))
	if err != nil || len(data) == 0 {
		return "", false
	}
	return strings.ToValidUTF8(string(data), "�"), true
}
