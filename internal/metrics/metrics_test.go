package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(agentRuns.WithLabelValues("codex", OutcomeTimeout))
	AgentRun("codex", OutcomeTimeout)
	if got := testutil.ToFloat64(agentRuns.WithLabelValues("codex", OutcomeTimeout)); got != before+1 {
		t.Fatalf("agent runs = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(triggerDecisions.WithLabelValues("claude", "command"))
	TriggerDecision("claude", "command")
	if got := testutil.ToFloat64(triggerDecisions.WithLabelValues("claude", "command")); got != before+1 {
		t.Fatalf("decisions = %v, want %v", got, before+1)
	}
}

func TestGauges(t *testing.T) {
	SnapshotFiles(42)
	if got := testutil.ToFloat64(snapshotFiles); got != 42 {
		t.Fatalf("snapshot files = %v", got)
	}
	QueueDepth(3)
	if got := testutil.ToFloat64(queueDepth); got != 3 {
		t.Fatalf("queue depth = %v", got)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{
		http.StatusAccepted:           "2xx",
		http.StatusUnauthorized:       "4xx",
		http.StatusServiceUnavailable: "5xx",
		http.StatusTemporaryRedirect:  "other",
	}
	for status, want := range tests {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", status, got, want)
		}
	}
}
