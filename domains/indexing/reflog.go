package indexing

import (
	"bytes"
	"context"
	"slices"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gomantics/gitindex/db"
	"github.com/gomantics/gitindex/domains/commits"
	"github.com/gomantics/gitindex/domains/repos"
	"github.com/gomantics/gitindex/libs/gitrepo"
	"go.uber.org/zap"
)

const (
	// chunkSize is the number of walked commits per atomic batch
	chunkSize = 250
	// progressInterval is how often large ingests are logged, in commits
	progressInterval = 25_000
)

// indexMode is the state of a reference index update. A rebuild is entered
// at most once per update.
type indexMode int

const (
	modeIncremental indexMode = iota
	modeForceRebuild
)

func (m indexMode) String() string {
	if m == modeForceRebuild {
		return "rebuild"
	}
	return "incremental"
}

// history is what the commit indexer reads from a repository
type history interface {
	PeelToCommit(name string) (*object.Commit, error)
	WalkOldestFirst(tip plumbing.Hash) ([]plumbing.Hash, error)
	Commit(h plumbing.Hash) (*object.Commit, error)
}

// updateReflog brings the commit tree of every branch and tag up to date
// and records which references exist.
func (o *Orchestrator) updateReflog(ctx context.Context, l *zap.Logger, scanPath string, projects projectSet, stats *Stats) {
	entries, err := repos.List(o.d)
	if err != nil {
		stats.Errors++
		l.Error("failed to read repository index to update reflog, consider deleting the database", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if cancelled(ctx, l) {
			return
		}

		rl := l.With(zap.String("repository", entry.Path))

		repo, ok := o.openLive(rl, scanPath, entry, projects, stats)
		if !ok {
			continue
		}

		refs, err := repo.References()
		if err != nil {
			stats.Errors++
			rl.Error("failed to read references", zap.Error(err))
			continue
		}

		var valid []string
		for _, ref := range refs {
			name := ref.Name().String()
			if !gitrepo.IsIndexable(name) {
				continue
			}

			valid = append(valid, name)
			stats.References++

			tree := commits.NewTree(o.d, entry.Repository.ID, name)
			if err := o.indexReference(rl.With(zap.String("reference", name)), repo, tree, stats); err != nil {
				stats.Errors++
				rl.Error("failed to update reflog", zap.String("reference", name), zap.Error(err))
			}
		}

		o.replaceHeads(rl, entry, valid, stats)
	}
}

// replaceHeads stores the observed references as the current heads and
// drops the commit trees of references that no longer exist.
func (o *Orchestrator) replaceHeads(l *zap.Logger, entry repos.Entry, valid []string, stats *Stats) {
	id := entry.Repository.ID

	previous, err := repos.Heads(o.d, id)
	if err != nil {
		stats.Errors++
		l.Error("failed to read previous heads", zap.Error(err))
	}

	for _, name := range previous {
		if slices.Contains(valid, name) {
			continue
		}
		l.Info("reference removed, dropping its commit tree", zap.String("reference", name))
		if err := commits.NewTree(o.d, id, name).Drop(); err != nil {
			stats.Errors++
			l.Error("failed to drop commit tree", zap.String("reference", name), zap.Error(err))
		}
	}

	if err := repos.ReplaceHeads(o.d, id, valid); err != nil {
		stats.Errors++
		l.Error("failed to update heads", zap.Error(err))
	}
}

// indexReference appends the commits a reference gained since the last
// update. When the last indexed commit is no longer in the history of the
// reference the tree is rebuilt from scratch, once. A read error stops the
// reference, chunks written before it stay valid.
func (o *Orchestrator) indexReference(l *zap.Logger, repo history, tree *commits.Tree, stats *Stats) error {
	mode := modeIncremental
	for {
		matched, err := o.indexPass(l, repo, tree, mode, stats)
		if err != nil {
			return err
		}
		if matched || mode == modeForceRebuild {
			return nil
		}

		l.Warn("detected converged history, forcing reindex")
		stats.Rebuilds++
		mode = modeForceRebuild
	}
}

// indexPass runs one walk of the reference history. matched is false when
// the tree had a tip that the walk never reached.
func (o *Orchestrator) indexPass(l *zap.Logger, repo history, tree *commits.Tree, mode indexMode, stats *Stats) (matched bool, err error) {
	l.Debug("refreshing indexes", zap.Stringer("mode", mode))

	if mode == modeForceRebuild {
		if err := tree.Drop(); err != nil {
			return false, err
		}
	}

	tip, err := repo.PeelToCommit(tree.Reference())
	if err != nil {
		return false, err
	}

	latest, err := tree.Latest()
	if err != nil {
		return false, err
	}

	if latest != nil && bytes.Equal(latest.Hash, tip.Hash[:]) {
		l.Debug("no commits since last index")
		return true, nil
	}

	walk, err := repo.WalkOldestFirst(tip.Hash)
	if err != nil {
		return false, err
	}

	length, err := tree.Len()
	if err != nil {
		return false, err
	}

	seen := latest == nil
	var inserted uint64

	for chunk := range slices.Chunk(walk, chunkSize) {
		committed := inserted
		err := tree.WriteChunk(func(b *db.Batch) error {
			for _, h := range chunk {
				if !seen {
					// the last indexed commit is already in the tree
					seen = bytes.Equal(h[:], latest.Hash)
					continue
				}

				if (inserted+1)%progressInterval == 0 {
					l.Info("commits ingested", zap.Uint64("count", inserted+1))
				}

				c, err := repo.Commit(h)
				if err != nil {
					return err
				}

				if err := tree.Insert(b, length+inserted, commits.NewCommit(c)); err != nil {
					return err
				}
				inserted++
			}

			if b.Empty() {
				return nil
			}
			return tree.SetLen(b, length+inserted)
		})
		if err != nil {
			stats.Commits += int(committed)
			return false, err
		}
	}

	stats.Commits += int(inserted)
	return seen, nil
}
