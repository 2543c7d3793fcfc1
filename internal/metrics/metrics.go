// Package metrics holds the Prometheus collectors of the webhook service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for agent runs.
const (
	OutcomePullRequest = "pull_request"
	OutcomePushed      = "pushed"
	OutcomeCommented   = "commented"
	OutcomeTimeout     = "timeout"
	OutcomeFailed      = "failed"
	OutcomeEmpty       = "empty_workspace"
)

var (
	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_agent_webhook_deliveries_total",
			Help: "Webhook deliveries received, by GitHub event name and HTTP status",
		},
		[]string{"event", "status"},
	)

	eventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_agent_events_total",
			Help: "Classified webhook events, by kind",
		},
		[]string{"kind"},
	)

	triggerDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_agent_trigger_decisions_total",
			Help: "Trigger decisions, by agent and source",
		},
		[]string{"agent", "source"},
	)

	agentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_agent_agent_runs_total",
			Help: "Agent runs, by agent and outcome",
		},
		[]string{"agent", "outcome"},
	)

	changedFiles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "code_agent_changed_files",
			Help:    "Files added, modified or deleted by one agent run",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	snapshotFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "code_agent_snapshot_files",
			Help: "Number of files in the most recent workspace snapshot",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "code_agent_queue_depth",
			Help: "Jobs waiting in the worker queue",
		},
	)
)

// WebhookDelivery records one HTTP delivery.
func WebhookDelivery(event string, status int) {
	webhookDeliveries.WithLabelValues(event, statusClass(status)).Inc()
}

// EventClassified records a classified event kind.
func EventClassified(kind string) {
	eventsClassified.WithLabelValues(kind).Inc()
}

// TriggerDecision records a resolved trigger.
func TriggerDecision(agent, source string) {
	triggerDecisions.WithLabelValues(agent, source).Inc()
}

// AgentRun records the outcome of one agent run.
func AgentRun(agent, outcome string) {
	agentRuns.WithLabelValues(agent, outcome).Inc()
}

// ChangedFiles observes the size of a change set.
func ChangedFiles(n int) {
	changedFiles.Observe(float64(n))
}

// SnapshotFiles sets the size of the latest snapshot.
func SnapshotFiles(n int) {
	snapshotFiles.Set(float64(n))
}

// QueueDepth sets the number of pending jobs.
func QueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 200 && status < 300:
		return "2xx"
	default:
		return "other"
	}
}
