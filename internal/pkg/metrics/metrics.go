// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdispatch_events_applied_total",
			Help: "Events applied by the event router, by event type",
		},
		[]string{"type"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdispatch_events_dropped_total",
			Help: "Events not applied, by reason",
		},
		[]string{"reason"},
	)

	AdmissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdispatch_admission_decisions_total",
			Help: "Token bucket decisions by call site and outcome",
		},
		[]string{"site", "decision"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdispatch_order_transitions_total",
			Help: "Committed order status transitions by new status",
		},
		[]string{"status"},
	)

	DispatchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdispatch_dispatch_outcomes_total",
			Help: "Dispatch attempt outcomes",
		},
		[]string{"outcome"},
	)

	PublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderdispatch_publish_failures_total",
			Help: "Status changes that could not be published after all retries",
		},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orderdispatch_publish_duration_seconds",
			Help:    "Time spent publishing one status change, retries included",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orderdispatch_event_processing_duration_seconds",
			Help:    "Time from shard pickup to completion of one event",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register adds every collector to reg. Call it once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		EventsAppliedTotal,
		EventsDroppedTotal,
		AdmissionDecisionsTotal,
		TransitionsTotal,
		DispatchOutcomesTotal,
		PublishFailuresTotal,
		PublishDuration,
		EventProcessingDuration,
	)
}
