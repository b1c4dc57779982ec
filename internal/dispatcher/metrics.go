package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "twtracker_units_in_flight",
		Help: "Pagination runs currently executing",
	})

	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twtracker_completions_total",
		Help: "Completed units by outcome",
	}, []string{"outcome"})

	unitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "twtracker_unit_duration_seconds",
		Help:    "Wall time of one pagination run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	restartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "twtracker_dispatcher_restarts_total",
		Help: "Dispatcher restarts after a substrate failure",
	})
)
