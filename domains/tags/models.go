package tags

import (
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gomantics/gitindex/domains/commits"
)

// Tag is the indexed form of an annotated tag
type Tag struct {
	Tagger  *commits.Signature `cbor:"1,keyasint,omitempty"`
	Message string             `cbor:"2,keyasint"`
	// Object is the id of the tag object itself
	Object []byte `cbor:"3,keyasint"`
	// Target is the id of the object the tag annotates
	Target []byte `cbor:"4,keyasint"`
}

// NewTag converts a git tag object
func NewTag(t *object.Tag) Tag {
	tag := Tag{
		Message: t.Message,
		Object:  append([]byte(nil), t.Hash[:]...),
		Target:  append([]byte(nil), t.Target[:]...),
	}
	if t.Tagger.Name != "" || t.Tagger.Email != "" {
		s := commits.NewSignature(t.Tagger)
		tag.Tagger = &s
	}
	return tag
}
