package scroll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for scroll runs.
var (
	scrollPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "es_scroll_pages_total",
		Help: "Total scroll pages fetched",
	})

	scrollHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "es_scroll_hits_total",
		Help: "Total hits delivered to consumers",
	})

	scrollPageHits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "es_scroll_page_hits",
		Help:    "Hits per scroll page",
		Buckets: []float64{0, 1, 10, 100, 500, 1000, 5000, 10000},
	})

	scrollPageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "es_scroll_page_duration_seconds",
		Help:    "Time from fetch to the last hit of a page, including consumer backpressure",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	scrollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "es_scroll_errors_total",
		Help: "Scroll runs that failed, by error kind",
	}, []string{"kind"})

	scrollAnomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "es_scroll_protocol_anomalies_total",
		Help: "Pages that ended a scroll without a continuation token",
	}, []string{"kind"})

	scrollRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "es_scroll_runs_total",
		Help: "Finished scroll runs by result",
	}, []string{"result"})
)
