package telemetryprom_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"agentruntime/adapters/telemetryprom"
	"agentruntime/agent"
	"agentruntime/ports"
)

func TestSinkRecordsRunAndStepMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := telemetryprom.New(reg)
	ctx := context.Background()

	sink.StartRun(ctx, ports.StartRunRecord{RunID: "run-1", AgentID: "greeter"})
	sink.AddStep(ctx, ports.StepRecord{RunID: "run-1", StepNumber: 1, Credits: 3, Status: ports.StepStatusCompleted})
	sink.FinishRun(ctx, ports.FinishRunRecord{RunID: "run-1", Status: agent.AgentRunStatusCompleted, TotalCredits: 3})

	const wantStarted = `
# HELP agentruntime_runs_started_total Total number of agent runs started.
# TYPE agentruntime_runs_started_total counter
agentruntime_runs_started_total{agent_id="greeter"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(wantStarted), "agentruntime_runs_started_total"); err != nil {
		t.Fatalf("unexpected runs_started metric: %v", err)
	}

	const wantFinished = `
# HELP agentruntime_runs_finished_total Total number of agent runs reaching a terminal status.
# TYPE agentruntime_runs_finished_total counter
agentruntime_runs_finished_total{status="completed"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(wantFinished), "agentruntime_runs_finished_total"); err != nil {
		t.Fatalf("unexpected runs_finished metric: %v", err)
	}
}
