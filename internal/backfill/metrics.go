package backfill

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeFetched   = "fetched"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
	outcomeProjected = "projected"
)

// Metrics holds the Prometheus collectors updated by Fetch and Project.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetchDates    *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	projectDates  *prometheus.CounterVec
}

// NewMetrics registers the backfill collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetchDates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtemp_fetch_dates_total",
				Help: "Days considered by the fetch scheduler, by outcome",
			},
			[]string{"outcome"}, // "fetched", "skipped", "failed"
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "airtemp_fetch_duration_seconds",
				Help:    "Duration of a single day's fetch",
				Buckets: prometheus.DefBuckets,
			},
		),
		projectDates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtemp_project_dates_total",
				Help: "Days handled by the projection scheduler, by outcome",
			},
			[]string{"outcome"}, // "projected", "failed"
		),
	}
}

func (m *Metrics) fetchOutcome(outcome string) {
	if m == nil {
		return
	}
	m.fetchDates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) projectOutcome(outcome string) {
	if m == nil {
		return
	}
	m.projectDates.WithLabelValues(outcome).Inc()
}
