package indexing

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/gomantics/gitindex/domains/repos"
	"github.com/gomantics/gitindex/libs/gitrepo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// projectSet holds the relative paths that are still present on disk. A nil
// set means no project list was given and nothing is pruned by absence.
type projectSet map[string]struct{}

func (p projectSet) contains(rel string) bool {
	_, ok := p[rel]
	return ok
}

// updateMetadata refreshes the record of every discovered repository and
// returns the still-present set when the source is a project list.
func (o *Orchestrator) updateMetadata(ctx context.Context, l *zap.Logger, scanPath string, source Source, stats *Stats) projectSet {
	discovered := source.Discover(l, scanPath)
	stats.Discovered = len(discovered)

	var projects projectSet
	if source.Listed() {
		projects = make(projectSet)
	}

	for _, repoPath := range discovered {
		if cancelled(ctx, l) {
			break
		}

		rel, ok := relativePath(scanPath, repoPath)
		if !ok {
			l.Warn("repository is outside the scan path, skipping", zap.String("path", repoPath))
			continue
		}

		rl := l.With(zap.String("repository", rel))

		id, err := o.resolveID(rel)
		if err != nil {
			// deleting the record here would trigger a reindex of a possibly
			// corrupt database on every pass
			stats.Errors++
			rl.Error("failed to open repository index, please consider deleting the database", zap.Error(err))
			continue
		}

		record := repos.Repository{
			ID:   id,
			Name: path.Base(rel),
		}

		if desc, ok := gitrepo.ReadDescription(repoPath); ok {
			record.Description = &desc
		}

		repo, err := gitrepo.Open(repoPath)
		if err != nil {
			rl.Warn("failed to open repository to update metadata, skipping", zap.Error(err))
			continue
		}

		if projects != nil {
			projects[rel] = struct{}{}
		}

		if owner, ok := repo.Owner(); ok {
			record.Owner = &owner
		}

		// on error this is the newest time seen before the failure
		record.LastModified, err = repo.LastCommittedTime()
		if err != nil {
			rl.Warn("failed to find last commit time", zap.Error(err))
		}

		if branch, ok := repo.DefaultBranch(); ok {
			record.DefaultBranch = &branch
		}

		if err := repos.Upsert(o.d, rel, record); err != nil {
			stats.Errors++
			rl.Warn("failed to insert repository", zap.Error(err))
			continue
		}

		stats.Repositories++
	}

	return projects
}

// resolveID returns the id of an indexed repository, allocating one for a
// repository seen for the first time.
func (o *Orchestrator) resolveID(rel string) (uuid.UUID, error) {
	existing, err := repos.Get(o.d, rel)
	if errors.Is(err, repos.ErrNotFound) {
		return repos.NewID(), nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return existing.ID, nil
}

// relativePath returns repoPath relative to scanPath in slash form, or false
// when repoPath is not strictly below scanPath.
func relativePath(scanPath, repoPath string) (string, bool) {
	rel, err := filepath.Rel(scanPath, repoPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
