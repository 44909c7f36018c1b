package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Automation trigger attempts partitioned by outcome
	automationTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_triggers_total",
			Help: "Automation trigger attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Dispatches partitioned by outcome (accepted, rejected, error, duplicate)
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_dispatch_total",
			Help: "Per-recipient dispatch results",
		},
		[]string{"outcome"},
	)

	// Provider call latency
	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "automation_dispatch_provider_seconds",
			Help:    "Latency of provider send calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Status callbacks partitioned by result (applied, duplicate, stale, not_found, invalid)
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_status_callbacks_total",
			Help: "Delivery status callbacks by reconciliation result",
		},
		[]string{"result"},
	)

	// Callbacks whose status is outside the known vocabulary
	unknownStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_status_unknown_total",
			Help: "Delivery status callbacks carrying an unknown status value",
		},
		[]string{"status"},
	)

	// Send record lookups partitioned by path (index, scatter, miss)
	lookupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "send_record_lookups_total",
			Help: "Provider message id lookups by resolution path",
		},
		[]string{"path"},
	)

	// Tenant partitions probed by scatter lookups
	scatterProbes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "send_record_scatter_probes",
			Help:    "Number of tenant partitions probed per scatter lookup",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// Finalized automations partitioned by status and cause (complete, timeout, rejected, empty)
	finalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_finalized_total",
			Help: "Finalized automations by final status and cause",
		},
		[]string{"status", "cause"},
	)
)
