// Package gitrepotest builds bare repositories on disk for tests.
package gitrepotest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// Epoch is the base time of generated commits. Commit n is made at Epoch+n
// minutes so the committer time order is the creation order.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Repo is a bare repository under construction
type Repo struct {
	t    testing.TB
	Path string
	Git  *git.Repository
	tree plumbing.Hash
	n    int
}

// Init creates a bare repository at path, with a packed-refs file so that
// recursive discovery recognises it.
func Init(t testing.TB, path string) *Repo {
	t.Helper()

	r, err := git.PlainInit(path, true)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "packed-refs"), nil, 0o644))

	repo := &Repo{t: t, Path: path, Git: r}
	repo.tree = repo.store(&object.Tree{})
	return repo
}

type encoder interface {
	Encode(plumbing.EncodedObject) error
}

func (r *Repo) store(o encoder) plumbing.Hash {
	r.t.Helper()

	obj := r.Git.Storer.NewEncodedObject()
	require.NoError(r.t, o.Encode(obj))
	h, err := r.Git.Storer.SetEncodedObject(obj)
	require.NoError(r.t, err)
	return h
}

// Signature returns a deterministic signature for the n-th object
func Signature(name string, n int) object.Signature {
	return object.Signature{
		Name:  name,
		Email: name + "@example.com",
		When:  Epoch.Add(time.Duration(n) * time.Minute),
	}
}

// Commit writes a commit with the given parents
func (r *Repo) Commit(msg string, parents ...plumbing.Hash) plumbing.Hash {
	r.t.Helper()

	r.n++
	c := &object.Commit{
		Author:       Signature("author", r.n),
		Committer:    Signature("committer", r.n),
		Message:      msg,
		TreeHash:     r.tree,
		ParentHashes: parents,
	}
	return r.store(c)
}

// Chain writes a linear history on top of parent (zero for a root commit)
// and returns the new commits oldest first.
func (r *Repo) Chain(parent plumbing.Hash, msgs ...string) []plumbing.Hash {
	r.t.Helper()

	out := make([]plumbing.Hash, 0, len(msgs))
	for _, m := range msgs {
		var c plumbing.Hash
		if parent.IsZero() {
			c = r.Commit(m)
		} else {
			c = r.Commit(m, parent)
		}
		out = append(out, c)
		parent = c
	}
	return out
}

// SetBranch points refs/heads/name at h
func (r *Repo) SetBranch(name string, h plumbing.Hash) {
	r.t.Helper()
	r.setRef(plumbing.NewBranchReferenceName(name), h)
}

// LightweightTag points refs/tags/name straight at h
func (r *Repo) LightweightTag(name string, h plumbing.Hash) {
	r.t.Helper()
	r.setRef(plumbing.NewTagReferenceName(name), h)
}

// AnnotatedTag writes a tag object for h and points refs/tags/name at it
func (r *Repo) AnnotatedTag(name string, h plumbing.Hash, tagger string) plumbing.Hash {
	r.t.Helper()

	r.n++
	tag := &object.Tag{
		Name:       name,
		Tagger:     Signature(tagger, r.n),
		Message:    "release " + name + "\n",
		TargetType: plumbing.CommitObject,
		Target:     h,
	}
	th := r.store(tag)
	r.setRef(plumbing.NewTagReferenceName(name), th)
	return th
}

// DeleteRef removes a reference by full name
func (r *Repo) DeleteRef(name string) {
	r.t.Helper()
	require.NoError(r.t, r.Git.Storer.RemoveReference(plumbing.ReferenceName(name)))
}

// MissingParent is a commit id that is never stored, to stand for history
// cut off by a shallow clone.
var MissingParent = plumbing.NewHash("1111111111111111111111111111111111111111")

// Shallow writes a commit whose parent is not in the repository and records
// it in the shallow file, the way a depth 1 clone looks.
func (r *Repo) Shallow(msg string) plumbing.Hash {
	r.t.Helper()

	h := r.Commit(msg, MissingParent)
	r.WriteFile("shallow", h.String()+"\n")
	return h
}

// SetHead points HEAD at refs/heads/name
func (r *Repo) SetHead(name string) {
	r.t.Helper()
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(name))
	require.NoError(r.t, r.Git.Storer.SetReference(ref))
}

// WriteFile writes a file inside the repository directory
func (r *Repo) WriteFile(name, content string) {
	r.t.Helper()
	require.NoError(r.t, os.WriteFile(filepath.Join(r.Path, name), []byte(content), 0o644))
}

func (r *Repo) setRef(name plumbing.ReferenceName, h plumbing.Hash) {
	r.t.Helper()
	require.NoError(r.t, r.Git.Storer.SetReference(plumbing.NewHashReference(name, h)))
}
