package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_queue_jobs_enqueued_total",
		Help: "Jobs accepted by the broker, by queue and job kind.",
	}, []string{"queue", "job_kind"})

	jobEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_queue_job_events_total",
		Help: "Job lifecycle events by queue, event and resulting state.",
	}, []string{"queue", "event", "state"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_queue_job_duration_seconds",
		Help:    "Handler run time per attempt.",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue", "job_kind"})
)
