package repos

import (
	"time"

	"github.com/google/uuid"
)

// Repository is the indexed metadata of one bare repository, keyed by its
// path relative to the scan root.
type Repository struct {
	ID            uuid.UUID `cbor:"1,keyasint"`
	Name          string    `cbor:"2,keyasint"`
	Description   *string   `cbor:"3,keyasint,omitempty"`
	Owner         *string   `cbor:"4,keyasint,omitempty"`
	LastModified  time.Time `cbor:"5,keyasint"`
	DefaultBranch *string   `cbor:"6,keyasint,omitempty"`
}

// Entry pairs a repository with its relative path
type Entry struct {
	Path       string
	Repository Repository
}

// NewID allocates a repository id
func NewID() uuid.UUID {
	return uuid.New()
}
