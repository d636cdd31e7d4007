package crawler

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns the Prometheus collectors for a crawl run.
type Metrics struct {
	pagesVisited     prometheus.Counter
	recordsExtracted prometheus.Counter
	rowsSkipped      prometheus.Counter
	downloads        *prometheus.CounterVec
	persists         *prometheus.CounterVec
}

// NewMetrics registers the crawl collectors against the provided registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		pagesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_pages_visited_total",
			Help: "Result pages processed.",
		}),
		recordsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_records_extracted_total",
			Help: "Records extracted from result rows.",
		}),
		rowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_rows_skipped_total",
			Help: "Result rows dropped during extraction.",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_downloads_total",
			Help: "Document downloads partitioned by outcome.",
		}, []string{"outcome"}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_persists_total",
			Help: "Record saves partitioned by outcome.",
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		m.pagesVisited,
		m.recordsExtracted,
		m.rowsSkipped,
		m.downloads,
		m.persists,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) pageVisited(records, skipped int) {
	if m == nil {
		return
	}
	m.pagesVisited.Inc()
	m.recordsExtracted.Add(float64(records))
	m.rowsSkipped.Add(float64(skipped))
}

func (m *Metrics) download(status FetchStatus) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) persist(outcome string) {
	if m == nil {
		return
	}
	m.persists.WithLabelValues(outcome).Inc()
}
