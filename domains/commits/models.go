package commits

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Signature is an author, committer or tagger identity
type Signature struct {
	Name  string `cbor:"1,keyasint"`
	Email string `cbor:"2,keyasint"`
	// Time is seconds since the Unix epoch
	Time int64 `cbor:"3,keyasint"`
	// Offset is the timezone offset in seconds east of UTC
	Offset int `cbor:"4,keyasint"`
}

// NewSignature converts a git signature
func NewSignature(s object.Signature) Signature {
	_, offset := s.When.Zone()
	return Signature{
		Name:   s.Name,
		Email:  s.Email,
		Time:   s.When.Unix(),
		Offset: offset,
	}
}

// Commit is an indexed commit. Records are never modified once written.
type Commit struct {
	Hash      []byte    `cbor:"1,keyasint"`
	Summary   string    `cbor:"2,keyasint"`
	Message   string    `cbor:"3,keyasint"`
	Author    Signature `cbor:"4,keyasint"`
	Committer Signature `cbor:"5,keyasint"`
	Parents   [][]byte  `cbor:"6,keyasint,omitempty"`
}

// NewCommit converts a git commit
func NewCommit(c *object.Commit) Commit {
	parents := make([][]byte, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, append([]byte(nil), p[:]...))
	}

	return Commit{
		Hash:      append([]byte(nil), c.Hash[:]...),
		Summary:   summary(c.Message),
		Message:   c.Message,
		Author:    NewSignature(c.Author),
		Committer: NewSignature(c.Committer),
		Parents:   parents,
	}
}

// ID returns the commit hash as a git object id
func (c Commit) ID() plumbing.Hash {
	var h plumbing.Hash
	copy(h[:], c.Hash)
	return h
}

// summary is the first line of a commit message
func summary(msg string) string {
	line, _, _ := strings.Cut(msg, "\n")
	return line
}
