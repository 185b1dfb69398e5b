package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ingestionTotal counts upload attempts by final result.
	ingestionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artreview_ingestion_total",
			Help: "Version uploads by result",
		},
		[]string{"result"},
	)

	ingestionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "artreview_ingestion_duration_seconds",
		Help:    "Duration of version uploads in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// compensationTotal counts compensating blob deletes by outcome.
	compensationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artreview_compensation_deletes_total",
			Help: "Compensating blob deletes after a failed upload",
		},
		[]string{"outcome"},
	)

	orphansReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artreview_orphaned_blobs_reclaimed_total",
		Help: "Blobs left by failed uploads that a later upload deleted to take their path",
	})

	versionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artreview_version_conflicts_total",
		Help: "Version number races lost and retried",
	})

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artreview_approval_decisions_total",
			Help: "Approval decisions recorded",
		},
		[]string{"decision", "approver"},
	)

	requestsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artreview_approval_requests_closed_total",
			Help: "Approval requests closed by outcome",
		},
		[]string{"outcome"},
	)

	accessDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artreview_share_access_denied_total",
			Help: "Share token checks that failed, by reason",
		},
		[]string{"reason"},
	)
)
