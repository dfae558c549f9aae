package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbrief_tasks_created_total",
		Help: "Total number of tasks created",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbrief_tasks_completed_total",
		Help: "Total number of tasks completed",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbrief_tasks_failed_total",
		Help: "Total number of tasks failed",
	})

	TasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbrief_tasks_cancelled_total",
		Help: "Total number of tasks cancelled",
	})

	TasksRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbrief_tasks_retried_total",
		Help: "Total number of explicit task retries",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidbrief_stage_duration_seconds",
		Help:    "Wall-clock duration of each pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"stage"})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidbrief_provider_calls_total",
		Help: "Summarization provider calls by provider and outcome",
	}, []string{"provider", "outcome"})

	FallbackUsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidbrief_summarize_fallback_total",
		Help: "Summaries produced by the fallback provider",
	})

	ExportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidbrief_export_failures_total",
		Help: "Per-format export failures",
	}, []string{"format"})
)
