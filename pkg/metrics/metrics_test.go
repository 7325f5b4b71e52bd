package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomantics/gitindex/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := metrics.New()

	m.Observe(metrics.Pass{Duration: time.Second, Repositories: 3, Commits: 10, Rebuilds: 1, TagsInserted: 2})
	m.Observe(metrics.Pass{Duration: time.Second, Repositories: 2, Commits: 5})

	count, err := testutil.GatherAndCount(m.Registry(), "gitindex_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["gitindex_runs_total"])
	assert.Equal(t, 15.0, values["gitindex_commits_indexed_total"])
	assert.Equal(t, 2.0, values["gitindex_repositories"])
	assert.Equal(t, 1.0, values["gitindex_tree_rebuilds_total"])
	assert.Equal(t, 2.0, values["gitindex_tags_total"])
}

func TestWriteTextfile(t *testing.T) {
	m := metrics.New()
	m.Observe(metrics.Pass{Commits: 1})

	path := filepath.Join(t.TempDir(), "gitindex.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gitindex_commits_indexed_total 1")
}
