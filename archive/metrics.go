package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCompleted        = "completed"
	outcomeAlreadyCompleted = "already_completed"
	outcomeDropped          = "dropped"
	outcomeNoFiles          = "no_files"
	outcomeRejected         = "rejected"
	outcomeFailed           = "failed"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handin_archive_jobs_total",
			Help: "Archive jobs processed, by outcome",
		},
		[]string{"outcome"},
	)

	archivedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handin_archive_bytes_total",
			Help: "Bytes written to uploaded submission archives",
		},
	)

	jobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "handin_archive_job_duration_seconds",
			Help:    "Wall time of one archive job",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)
)
