package indexing

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/gomantics/gitindex/db"
	"github.com/gomantics/gitindex/pkg/metrics"
	"go.uber.org/zap"
)

// Stats summarises one index update
type Stats struct {
	Discovered   int
	Repositories int
	Deleted      int
	References   int
	Commits      int
	Rebuilds     int
	TagsInserted int
	TagsRemoved  int
	Errors       int
	Duration     time.Duration
}

func (s Stats) fields() []zap.Field {
	return []zap.Field{
		zap.Int("discovered", s.Discovered),
		zap.Int("repositories", s.Repositories),
		zap.Int("deleted", s.Deleted),
		zap.Int("references", s.References),
		zap.Int("commits_indexed", s.Commits),
		zap.Int("rebuilds", s.Rebuilds),
		zap.Int("tags_inserted", s.TagsInserted),
		zap.Int("tags_removed", s.TagsRemoved),
		zap.Int("errors", s.Errors),
		zap.Duration("duration", s.Duration),
	}
}

// Orchestrator runs index updates against a store. Updates are serialised:
// the commit and tag trees rely on a single writer.
type Orchestrator struct {
	l       *zap.Logger
	d       *db.DB
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// NewOrchestrator creates a new indexing orchestrator. m may be nil.
func NewOrchestrator(l *zap.Logger, d *db.DB, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		l:       l,
		d:       d,
		metrics: m,
	}
}

// Run performs a full index update of the repositories under scanPath.
// Failures are logged and never abort the pass; ctx is checked between
// repositories only.
func (o *Orchestrator) Run(ctx context.Context, scanPath string, source Source) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	var stats Stats

	if abs, err := filepath.Abs(scanPath); err == nil {
		scanPath = abs
	}

	l := o.l.With(zap.String("scan_path", scanPath))
	l.Info("starting index update", zap.Bool("projects_list", source.Listed()))

	projects := o.updateMetadata(ctx, l, scanPath, source, &stats)
	o.updateReflog(ctx, l, scanPath, projects, &stats)
	o.updateTags(ctx, l, scanPath, projects, &stats)

	l.Info("flushing to disk")
	if err := o.d.Flush(); err != nil {
		stats.Errors++
		l.Error("failed to flush index to disk", zap.Error(err))
	}

	stats.Duration = time.Since(start)
	l.Info("finished index update", stats.fields()...)

	if o.metrics != nil {
		o.metrics.Observe(metrics.Pass{
			Duration:     stats.Duration,
			Repositories: stats.Repositories,
			Deleted:      stats.Deleted,
			References:   stats.References,
			Commits:      stats.Commits,
			Rebuilds:     stats.Rebuilds,
			TagsInserted: stats.TagsInserted,
			TagsRemoved:  stats.TagsRemoved,
			Errors:       stats.Errors,
		})
	}

	return stats
}

// cancelled reports whether the pass should stop before the next repository
func cancelled(ctx context.Context, l *zap.Logger) bool {
	if err := ctx.Err(); err != nil {
		l.Warn("index update interrupted", zap.Error(err))
		return true
	}
	return false
}
