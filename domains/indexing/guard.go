package indexing

import (
	"errors"
	"path/filepath"

	"github.com/gomantics/gitindex/domains/repos"
	"github.com/gomantics/gitindex/libs/gitrepo"
	"go.uber.org/zap"
)

// openLive opens the repository behind an index entry. A repository that
// left the project list or vanished from disk has its index deleted; any
// other open failure only skips it, so a transient error never destroys an
// index.
func (o *Orchestrator) openLive(l *zap.Logger, scanPath string, entry repos.Entry, projects projectSet, stats *Stats) (*gitrepo.Repository, bool) {
	if projects != nil && !projects.contains(entry.Path) {
		l.Warn("repository gone from projects list, removing from index")
		o.deleteDangling(l, entry, stats)
		return nil, false
	}

	repo, err := gitrepo.Open(filepath.Join(scanPath, filepath.FromSlash(entry.Path)))
	if errors.Is(err, gitrepo.ErrNotFound) {
		l.Warn("repository gone from disk, removing from index")
		o.deleteDangling(l, entry, stats)
		return nil, false
	}
	if err != nil {
		stats.Errors++
		l.Warn("failed to open repository, skipping", zap.Error(err))
		return nil, false
	}

	return repo, true
}

func (o *Orchestrator) deleteDangling(l *zap.Logger, entry repos.Entry, stats *Stats) {
	if err := repos.Delete(o.d, entry.Path, entry.Repository.ID); err != nil {
		stats.Errors++
		l.Warn("failed to delete dangling index", zap.Error(err))
		return
	}
	stats.Deleted++
}
