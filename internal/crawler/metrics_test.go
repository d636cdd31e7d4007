package crawler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.pageVisited(18, 2)
	m.download(FetchSuccess)
	m.download(FetchNetworkError)
	m.persist("ok")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.pagesVisited))
	assert.Equal(t, float64(18), testutil.ToFloat64(m.recordsExtracted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.rowsSkipped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.downloads.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.downloads.WithLabelValues("network_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.persists.WithLabelValues("ok")))
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.pageVisited(1, 0)
	m.download(FetchSuccess)
	m.persist("ok")
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
