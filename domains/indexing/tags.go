package indexing

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/gomantics/gitindex/domains/repos"
	"github.com/gomantics/gitindex/domains/tags"
	"github.com/gomantics/gitindex/libs/gitrepo"
	"go.uber.org/zap"
)

// updateTags reconciles the tag tree of every repository with its git tags
func (o *Orchestrator) updateTags(ctx context.Context, l *zap.Logger, scanPath string, projects projectSet, stats *Stats) {
	entries, err := repos.List(o.d)
	if err != nil {
		stats.Errors++
		l.Error("failed to read repository index to update tags, consider deleting the database", zap.Error(err))
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

		if err := o.syncTags(rl, repo, tags.NewTree(o.d, entry.Repository.ID), stats); err != nil {
			stats.Errors++
			rl.Error("failed to update tags", zap.Error(err))
		}
	}
}

// syncTags inserts annotated tags missing from the index and removes
// indexed tags that no longer exist. A tag present on both sides is
// refreshed when its reference moved to another object.
func (o *Orchestrator) syncTags(l *zap.Logger, repo *gitrepo.Repository, tree *tags.Tree, stats *Stats) error {
	refs, err := repo.References()
	if err != nil {
		return fmt.Errorf("failed to scan references on git repository: %w", err)
	}

	live := make(map[string]struct{})
	for _, ref := range refs {
		if name := ref.Name().String(); gitrepo.IsTag(name) {
			live[name] = struct{}{}
		}
	}

	indexedNames, err := tree.List()
	if err != nil {
		return err
	}
	indexed := make(map[string]struct{}, len(indexedNames))
	for _, name := range indexedNames {
		indexed[name] = struct{}{}
	}

	liveNames := make([]string, 0, len(live))
	for name := range live {
		liveNames = append(liveNames, name)
	}
	slices.Sort(liveNames)

	for _, name := range liveNames {
		tl := l.With(zap.String("tag", name))

		if _, ok := indexed[name]; ok {
			if err := o.refreshTag(tl, repo, tree, name, stats); err != nil {
				return err
			}
			continue
		}

		if err := o.insertTag(tl, repo, tree, name, stats); err != nil {
			return err
		}
	}

	for _, name := range indexedNames {
		if _, ok := live[name]; ok {
			continue
		}

		l.Info("removing stale tag from index", zap.String("tag", name))
		if err := tree.Remove(name); err != nil {
			return err
		}
		stats.TagsRemoved++
	}

	return nil
}

func (o *Orchestrator) insertTag(l *zap.Logger, repo *gitrepo.Repository, tree *tags.Tree, name string, stats *Stats) error {
	tag, ok, err := repo.PeelToTag(name)
	if err != nil {
		return fmt.Errorf("failed to read newly discovered tag: %w", err)
	}
	if !ok {
		// lightweight tags carry no tagger to index
		return nil
	}

	l.Info("inserting newly discovered tag to index")
	if err := tree.Insert(name, tags.NewTag(tag)); err != nil {
		return err
	}
	stats.TagsInserted++
	return nil
}

// refreshTag handles a tag that was force-updated since it was indexed: a
// new annotated tag replaces the record, a lightweight one removes it.
func (o *Orchestrator) refreshTag(l *zap.Logger, repo *gitrepo.Repository, tree *tags.Tree, name string, stats *Stats) error {
	h, err := repo.Resolve(name)
	if err != nil {
		return err
	}

	stored, err := tree.Get(name)
	if err != nil {
		return err
	}
	if bytes.Equal(stored.Object, h[:]) {
		return nil
	}

	tag, ok, err := repo.PeelToTag(name)
	if err != nil {
		return err
	}
	if !ok {
		l.Info("tag is no longer annotated, removing from index")
		if err := tree.Remove(name); err != nil {
			return err
		}
		stats.TagsRemoved++
		return nil
	}

	l.Info("tag moved, replacing index entry")
	if err := tree.Insert(name, tags.NewTag(tag)); err != nil {
		return err
	}
	stats.TagsInserted++
	return nil
}
