package db

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Key layout. Every key starts with a one byte namespace:
//
//	r<relative path>                         repository record
//	c<id><reference>\x00e<be64 seq>          commit record
//	c<id><reference>\x00n                    commit tree counter
//	t<id><tag reference>                     tag record
//	h<id>                                    heads list
//
// git forbids NUL in reference names, so the terminator keeps the trees of
// refs/heads/a and refs/heads/ab apart.
const (
	nsRepository byte = 'r'
	nsCommit     byte = 'c'
	nsTag        byte = 't'
	nsHeads      byte = 'h'

	treeEntry   byte = 'e'
	treeCounter byte = 'n'
)

func key(ns byte, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	k := make([]byte, 0, n)
	k = append(k, ns)
	for _, p := range parts {
		k = append(k, p...)
	}
	return k
}

// RepositoryKey addresses the record of the repository at a relative path
func RepositoryKey(relativePath string) []byte {
	return key(nsRepository, []byte(relativePath))
}

// RepositoryPrefix covers all repository records
func RepositoryPrefix() []byte {
	return []byte{nsRepository}
}

// RepositoryPath extracts the relative path from a repository key
func RepositoryPath(k []byte) string {
	return string(k[1:])
}

// CommitsPrefix covers every commit tree of a repository
func CommitsPrefix(id uuid.UUID) []byte {
	return key(nsCommit, id[:])
}

// CommitTreePrefix covers the records and counter of one reference
func CommitTreePrefix(id uuid.UUID, reference string) []byte {
	return key(nsCommit, id[:], []byte(reference), []byte{0})
}

// CommitEntriesPrefix covers only the commit records of one reference
func CommitEntriesPrefix(id uuid.UUID, reference string) []byte {
	return append(CommitTreePrefix(id, reference), treeEntry)
}

// CommitKey addresses the commit at a sequence number
func CommitKey(id uuid.UUID, reference string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(CommitEntriesPrefix(id, reference), seq)
}

// CommitCounterKey addresses the length of one reference's commit tree
func CommitCounterKey(id uuid.UUID, reference string) []byte {
	return append(CommitTreePrefix(id, reference), treeCounter)
}

// TagsPrefix covers all tag records of a repository
func TagsPrefix(id uuid.UUID) []byte {
	return key(nsTag, id[:])
}

// TagKey addresses a tag record by its full reference name
func TagKey(id uuid.UUID, name string) []byte {
	return key(nsTag, id[:], []byte(name))
}

// TagName extracts the reference name from a tag key
func TagName(k []byte) string {
	return string(k[1+len(uuid.UUID{}):])
}

// HeadsKey addresses the heads list of a repository
func HeadsKey(id uuid.UUID) []byte {
	return key(nsHeads, id[:])
}

// PrefixEnd returns the smallest key greater than every key with prefix
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	// prefix is all 0xff, nothing sorts after it
	return nil
}

// EncodeUint64 is the on-disk form of counters
func EncodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// DecodeUint64 reverses EncodeUint64
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: counter has %d bytes", ErrCorrupt, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
