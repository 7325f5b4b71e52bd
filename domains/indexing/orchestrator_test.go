package indexing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitindex/config"
	"github.com/gomantics/gitindex/db"
	"github.com/gomantics/gitindex/domains/commits"
	"github.com/gomantics/gitindex/domains/repos"
	"github.com/gomantics/gitindex/domains/tags"
	"github.com/gomantics/gitindex/libs/gitrepo/gitrepotest"
	"github.com/gomantics/gitindex/pkg/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeList writes a projects list with one path per line
func writeList(t *testing.T, paths ...string) string {
	t.Helper()
	list := filepath.Join(t.TempDir(), "projects.list")
	require.NoError(t, os.WriteFile(list, []byte(strings.Join(paths, "\n")+"\n"), 0o644))
	return list
}

// countPrefix counts the keys stored under prefix
func countPrefix(t *testing.T, d *db.DB, prefix []byte) int {
	t.Helper()
	n := 0
	require.NoError(t, d.Scan(prefix, func(_, _ []byte) error {
		n++
		return nil
	}))
	return n
}

func getRepo(t *testing.T, d *db.DB, path string) *repos.Repository {
	t.Helper()
	repo, err := repos.Get(d, path)
	require.NoError(t, err)
	return repo
}

func TestRunIndexesRepository(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "team", "a.git"))
	c := fx.Chain(plumbing.ZeroHash, "c1", "c2")
	fx.SetBranch("main", c[1])
	fx.SetBranch("dev", c[0])
	fx.SetHead("main")
	fx.AnnotatedTag("v1", c[0], "alice")
	fx.LightweightTag("light", c[1])
	fx.WriteFile("description", "Service A\n")

	cfg, err := os.ReadFile(filepath.Join(fx.Path, "config"))
	require.NoError(t, err)
	fx.WriteFile("config", string(cfg)+"[gitweb]\n\towner = Jane Doe\n")

	stats := o.Run(context.Background(), root, Recursive{})
	assert.Equal(t, 1, stats.Discovered)
	assert.Equal(t, 1, stats.Repositories)
	assert.Equal(t, 4, stats.References)
	assert.Equal(t, 1, stats.TagsInserted)
	assert.Zero(t, stats.Errors)

	repo := getRepo(t, d, "team/a.git")
	assert.NotEqual(t, uuid.Nil, repo.ID)
	assert.Equal(t, "a.git", repo.Name)
	require.NotNil(t, repo.Description)
	assert.Equal(t, "Service A\n", *repo.Description)
	require.NotNil(t, repo.Owner)
	assert.Equal(t, "Jane Doe", *repo.Owner)
	require.NotNil(t, repo.DefaultBranch)
	assert.Equal(t, "refs/heads/main", *repo.DefaultBranch)
	assert.Equal(t, gitrepotest.Epoch.Add(2*time.Minute).Unix(), repo.LastModified.Unix())

	heads, err := repos.Heads(d, repo.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"refs/heads/main", "refs/heads/dev", "refs/tags/v1", "refs/tags/light",
	}, heads)

	assert.Equal(t, c, treeHashes(t, commits.NewTree(d, repo.ID, "refs/heads/main")))
	assert.Equal(t, c[:1], treeHashes(t, commits.NewTree(d, repo.ID, "refs/heads/dev")))
	assert.Equal(t, c[:1], treeHashes(t, commits.NewTree(d, repo.ID, "refs/tags/v1")))
	assert.Equal(t, c, treeHashes(t, commits.NewTree(d, repo.ID, "refs/tags/light")))

	names, err := tags.NewTree(d, repo.ID).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/tags/v1"}, names)
}

func TestRunKeepsIdentity(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	c := fx.Commit("c1")
	fx.SetBranch("main", c)

	o.Run(context.Background(), root, Recursive{})
	first := getRepo(t, d, "a.git")

	c2 := fx.Commit("c2", c)
	fx.SetBranch("main", c2)

	stats := o.Run(context.Background(), root, Recursive{})
	assert.Equal(t, 1, stats.Commits)

	second := getRepo(t, d, "a.git")
	assert.Equal(t, first.ID, second.ID)
	assert.Nil(t, second.Description)
	assert.Nil(t, second.Owner)
	assert.Nil(t, second.DefaultBranch, "HEAD points at an unborn master")
}

func TestRunRemovesDanglingFromProjectsList(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	for _, name := range []string{"a.git", "b.git"} {
		fx := gitrepotest.Init(t, filepath.Join(root, name))
		c := fx.Commit("c1")
		fx.SetBranch("main", c)
		fx.AnnotatedTag("v1", c, "alice")
	}

	stats := o.Run(context.Background(), root, ListFile{Path: writeList(t, "a.git", "b.git")})
	require.Equal(t, 2, stats.Repositories)

	b := getRepo(t, d, "b.git")
	require.NotZero(t, countPrefix(t, d, db.CommitsPrefix(b.ID)))
	require.NotZero(t, countPrefix(t, d, db.TagsPrefix(b.ID)))

	// b.git still exists on disk but is no longer listed
	stats = o.Run(context.Background(), root, ListFile{Path: writeList(t, "a.git")})
	assert.Equal(t, 1, stats.Deleted)

	_, err := repos.Get(d, "b.git")
	require.ErrorIs(t, err, repos.ErrNotFound)
	assert.Zero(t, countPrefix(t, d, db.CommitsPrefix(b.ID)))
	assert.Zero(t, countPrefix(t, d, db.TagsPrefix(b.ID)))
	_, err = d.Get(db.HeadsKey(b.ID))
	require.ErrorIs(t, err, db.ErrNotFound)

	a := getRepo(t, d, "a.git")
	assert.NotZero(t, countPrefix(t, d, db.CommitsPrefix(a.ID)))
}

func TestRunListedPathThatIsNotARepository(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	fx.SetBranch("main", fx.Commit("c1"))

	stats := o.Run(context.Background(), root, ListFile{Path: writeList(t, "a.git", "missing.git")})
	assert.Equal(t, 2, stats.Discovered)
	assert.Equal(t, 1, stats.Repositories)

	_, err := repos.Get(d, "missing.git")
	require.ErrorIs(t, err, repos.ErrNotFound)
}

func TestRunRenamedRepository(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	fx.SetBranch("main", fx.Commit("c1"))

	o.Run(context.Background(), root, Recursive{})
	old := getRepo(t, d, "a.git")

	require.NoError(t, os.Rename(filepath.Join(root, "a.git"), filepath.Join(root, "c.git")))

	stats := o.Run(context.Background(), root, Recursive{})
	assert.Equal(t, 1, stats.Deleted)

	_, err := repos.Get(d, "a.git")
	require.ErrorIs(t, err, repos.ErrNotFound)
	assert.Zero(t, countPrefix(t, d, db.CommitsPrefix(old.ID)))

	renamed := getRepo(t, d, "c.git")
	assert.NotEqual(t, old.ID, renamed.ID)
	assert.Equal(t, "c.git", renamed.Name)

	n, err := commits.NewTree(d, renamed.ID, "refs/heads/main").Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestRunDropsRemovedReference(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	c := fx.Commit("c1")
	fx.SetBranch("main", c)
	fx.SetBranch("feature", c)

	o.Run(context.Background(), root, Recursive{})
	repo := getRepo(t, d, "a.git")
	feature := commits.NewTree(d, repo.ID, "refs/heads/feature")
	require.Equal(t, []plumbing.Hash{c}, treeHashes(t, feature))

	fx.DeleteRef("refs/heads/feature")
	o.Run(context.Background(), root, Recursive{})

	n, err := feature.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, countPrefix(t, d, db.CommitTreePrefix(repo.ID, "refs/heads/feature")))

	heads, err := repos.Heads(d, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/heads/main"}, heads)
}

func TestRunSkipsRepositoryWithUnreadableRecord(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	fx.SetBranch("main", fx.Commit("c1"))

	// 0xff is a stray CBOR break code
	garbage := []byte{0xff, 0x00}
	require.NoError(t, d.Write(func(b *db.Batch) error {
		return b.Set(db.RepositoryKey("a.git"), garbage)
	}))

	stats := o.Run(context.Background(), root, Recursive{})
	assert.Zero(t, stats.Repositories)
	assert.GreaterOrEqual(t, stats.Errors, 1)
	assert.Zero(t, stats.Deleted)

	raw, err := d.Get(db.RepositoryKey("a.git"))
	require.NoError(t, err)
	assert.Equal(t, garbage, raw)
}

func TestRunShallowRepositoryLastModified(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	fx.SetBranch("main", fx.Shallow("depth 1"))

	o.Run(context.Background(), root, Recursive{})

	repo := getRepo(t, d, "a.git")
	assert.Equal(t, gitrepotest.Epoch.Add(time.Minute).Unix(), repo.LastModified.Unix())
}

func TestRunCancelled(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	fx.SetBranch("main", fx.Commit("c1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := o.Run(ctx, root, Recursive{})
	assert.Zero(t, stats.Repositories)
	assert.Empty(t, snapshot(t, d))
}

func TestWorkerRunOnceWritesMetrics(t *testing.T) {
	_, d := newTestOrchestrator(t)
	m := metrics.New()
	o := NewOrchestrator(zaptest.NewLogger(t), d, m)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	fx.SetBranch("main", fx.Commit("c1"))

	textfile := filepath.Join(t.TempDir(), "gitindex.prom")
	cfg := &config.Config{
		Environment: config.EnvironmentDev,
		Index: config.Index{
			ScanPath:        root,
			RefreshInterval: time.Minute,
		},
		Metrics: config.Metrics{Textfile: textfile},
	}

	w := NewWorker(zaptest.NewLogger(t), cfg, o, m)
	w.RunOnce()

	out, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(out), "gitindex_runs_total 1")
	assert.Contains(t, string(out), "gitindex_commits_indexed_total 1")
	assert.Contains(t, string(out), "gitindex_repositories 1")
}

func TestWorkerSchedule(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	cfg := &config.Config{
		Index: config.Index{
			ScanPath:        t.TempDir(),
			RefreshInterval: time.Hour,
		},
	}

	w := NewWorker(zaptest.NewLogger(t), cfg, o, nil)
	require.NoError(t, w.schedule())
	assert.Len(t, w.scheduler.Jobs(), 1)

	w.stop()
	// a stopped worker does not start another pass
	w.RunOnce()
}

func TestWorkerRunStopsWithContext(t *testing.T) {
	o, d := newTestOrchestrator(t)
	root := t.TempDir()

	fx := gitrepotest.Init(t, filepath.Join(root, "a.git"))
	fx.SetBranch("main", fx.Commit("c1"))

	cfg := &config.Config{
		Index: config.Index{
			ScanPath:        root,
			RefreshInterval: time.Minute,
		},
	}
	w := NewWorker(zaptest.NewLogger(t), cfg, o, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	assert.Empty(t, snapshot(t, d))

	w.Run(context.Background())
	getRepo(t, d, "a.git")
}
