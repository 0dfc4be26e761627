// Package observability registers the service's prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExternalCallDuration tracks outbound HTTP latency per downstream service.
	ExternalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vela",
		Name:      "external_call_duration_seconds",
		Help:      "Duration of calls to external services.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "outcome"})

	// TaskOutcomes counts terminal and retry outcomes per task type.
	TaskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vela",
		Name:      "task_outcomes_total",
		Help:      "Durable task executions by type and outcome.",
	}, []string{"task_type", "outcome"})

	// AdjustmentsAccepted counts accepted earn-rule evaluations per campaign.
	AdjustmentsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vela",
		Name:      "adjustments_accepted_total",
		Help:      "Transactions accepted by earn-rule evaluation.",
	}, []string{"retailer", "campaign"})

	// RewardsIssued counts reward units allocated per campaign.
	RewardsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vela",
		Name:      "reward_units_issued_total",
		Help:      "Reward units issued, immediate and pending.",
	}, []string{"campaign", "pending"})
)
