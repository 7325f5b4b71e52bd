package indexing

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitindex/db"
	"github.com/gomantics/gitindex/domains/commits"
	"github.com/gomantics/gitindex/libs/gitrepo"
	"github.com/gomantics/gitindex/pkg/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *db.DB) {
	t.Helper()

	d, err := db.Open("index", db.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return NewOrchestrator(zaptest.NewLogger(t), d, metrics.New()), d
}

func openRepo(t *testing.T, path string) *gitrepo.Repository {
	t.Helper()
	repo, err := gitrepo.Open(path)
	require.NoError(t, err)
	return repo
}

// treeHashes returns the hashes stored in a commit tree in sequence order
// and checks that the counter matches.
func treeHashes(t *testing.T, tree *commits.Tree) []plumbing.Hash {
	t.Helper()

	n, err := tree.Len()
	require.NoError(t, err)

	page, err := tree.Page(0, 0)
	require.NoError(t, err)
	require.Len(t, page, int(n), "counter and stored commits disagree")

	out := make([]plumbing.Hash, 0, len(page))
	for _, c := range page {
		out = append(out, c.ID())
	}
	return out
}

// snapshot copies every key and value of the store
func snapshot(t *testing.T, d *db.DB) map[string]string {
	t.Helper()

	out := make(map[string]string)
	err := d.Scan(nil, func(k, v []byte) error {
		out[string(k)] = string(v)
		return nil
	})
	require.NoError(t, err)
	return out
}

func newID() uuid.UUID {
	return uuid.New()
}
