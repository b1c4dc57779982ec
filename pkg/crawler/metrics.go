package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twtracker_pages_total",
		Help: "Pages fetched successfully",
	}, []string{"kind"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twtracker_records_total",
		Help: "Posts appended to output files",
	}, []string{"kind"})

	apiCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twtracker_api_calls_total",
		Help: "Fetch calls issued, including failed ones",
	}, []string{"kind"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twtracker_retries_total",
		Help: "Waits taken before repeating a request",
	}, []string{"reason"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twtracker_runs_total",
		Help: "Pagination runs by outcome",
	}, []string{"outcome"})
)
