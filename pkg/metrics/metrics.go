package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pass summarises one index update
type Pass struct {
	Duration     time.Duration
	Repositories int
	Deleted      int
	References   int
	Commits      int
	Rebuilds     int
	TagsInserted int
	TagsRemoved  int
	Errors       int
}

// Metrics holds the indexer collectors in a private registry, so several
// indexers can live in one process (tests do).
type Metrics struct {
	registry *prometheus.Registry

	runs         prometheus.Counter
	lastRun      prometheus.Gauge
	duration     prometheus.Histogram
	repositories prometheus.Gauge
	deleted      prometheus.Counter
	references   prometheus.Gauge
	commits      prometheus.Counter
	rebuilds     prometheus.Counter
	tags         *prometheus.CounterVec
	errors       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitindex_runs_total",
			Help: "Index updates completed",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gitindex_last_run_timestamp_seconds",
			Help: "Unix time the last index update finished",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gitindex_run_duration_seconds",
			Help:    "Duration of index updates",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		}),
		repositories: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gitindex_repositories",
			Help: "Repositories whose metadata was refreshed by the last update",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitindex_repositories_deleted_total",
			Help: "Repositories removed from the index because they disappeared",
		}),
		references: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gitindex_references",
			Help: "Branch and tag references seen by the last update",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitindex_commits_indexed_total",
			Help: "Commits appended to commit trees",
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitindex_tree_rebuilds_total",
			Help: "Commit trees rebuilt after their history was rewritten",
		}),
		tags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gitindex_tags_total",
			Help: "Tag records changed, by operation",
		}, []string{"operation"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gitindex_errors_total",
			Help: "Repositories or references skipped because of an error",
		}),
	}

	m.registry.MustRegister(
		m.runs, m.lastRun, m.duration, m.repositories, m.deleted,
		m.references, m.commits, m.rebuilds, m.tags, m.errors,
	)

	return m
}

// Registry exposes the collectors, for export or inspection
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records a finished pass
func (m *Metrics) Observe(p Pass) {
	m.runs.Inc()
	m.lastRun.SetToCurrentTime()
	m.duration.Observe(p.Duration.Seconds())
	m.repositories.Set(float64(p.Repositories))
	m.deleted.Add(float64(p.Deleted))
	m.references.Set(float64(p.References))
	m.commits.Add(float64(p.Commits))
	m.rebuilds.Add(float64(p.Rebuilds))
	m.tags.WithLabelValues("insert").Add(float64(p.TagsInserted))
	m.tags.WithLabelValues("remove").Add(float64(p.TagsRemoved))
	m.errors.Add(float64(p.Errors))
}

// WriteTextfile writes the metrics in the text exposition format for the
// node exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
