package swarm

import (
	"context"
	"testing"
	"time"
)

// regionCompleter answers instantly for every region except the ones listed in
// hang, which block until the call context is cancelled.
type regionCompleter struct {
	hang map[string]bool
}

func (r *regionCompleter) Complete(ctx context.Context, region, prompt string) (string, error) {
	if r.hang[region] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return intentOK, nil
}

func TestDispatchOneOutcomePerAgent(t *testing.T) {
	agents := []Agent{
		{ID: "intent-01", Region: "us-east"},
		{ID: "intent-02", Region: "eu-west"},
		{ID: "intent-03", Region: "ap-south"},
	}
	inv := NewInvoker(&regionCompleter{}, time.Second)

	outcomes := Dispatch(context.Background(), inv, agents, NewTask(TaskIntentClassification, nil), time.Second)

	if len(outcomes) != len(agents) {
		t.Fatalf("expected %d outcomes, got %d", len(agents), len(outcomes))
	}
	for i, o := range outcomes {
		if o.AgentID != agents[i].ID {
			t.Errorf("outcome %d: expected agent %s, got %s", i, agents[i].ID, o.AgentID)
		}
		if o.Status != OutcomeOK {
			t.Errorf("agent %s: expected ok, got %s", o.AgentID, o.Status)
		}
	}
}

func TestDispatchStragglerContainment(t *testing.T) {
	agents := []Agent{
		{ID: "intent-01", Region: "us-east"},
		{ID: "intent-02", Region: "eu-west"},
		{ID: "intent-03", Region: "ap-south"},
	}
	// eu-west never answers; both the per-agent and the stage budget are short
	// so the test stays fast.
	inv := NewInvoker(&regionCompleter{hang: map[string]bool{"eu-west": true}}, 50*time.Millisecond)

	const stageTimeout = 200 * time.Millisecond
	started := time.Now()
	outcomes := Dispatch(context.Background(), inv, agents, NewTask(TaskIntentClassification, nil), stageTimeout)
	elapsed := time.Since(started)

	if elapsed > stageTimeout+100*time.Millisecond {
		t.Errorf("dispatch took %v, stage budget was %v", elapsed, stageTimeout)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != OutcomeOK || outcomes[2].Status != OutcomeOK {
		t.Errorf("healthy agents should be ok: %s, %s", outcomes[0].Status, outcomes[2].Status)
	}
	if outcomes[1].Status != OutcomeTimeout {
		t.Errorf("straggler should be timeout, got %s", outcomes[1].Status)
	}
	if outcomes[1].AgentID != "intent-02" {
		t.Errorf("straggler outcome should carry its agent ID, got %s", outcomes[1].AgentID)
	}
}

func TestDispatchStageDeadlineFillsMissing(t *testing.T) {
	agents := []Agent{
		{ID: "a1", Region: "r1"},
		{ID: "a2", Region: "r2"},
	}
	// Both hang and the per-agent budget exceeds the stage budget, so the stage
	// deadline fires first and both slots are filled in as timeouts.
	inv := NewInvoker(&regionCompleter{hang: map[string]bool{"r1": true, "r2": true}}, time.Minute)

	const stageTimeout = 100 * time.Millisecond
	started := time.Now()
	outcomes := Dispatch(context.Background(), inv, agents, NewTask(TaskDataAnalysis, nil), stageTimeout)
	elapsed := time.Since(started)

	for _, o := range outcomes {
		if o.Status != OutcomeTimeout {
			t.Errorf("agent %s: expected timeout, got %s", o.AgentID, o.Status)
		}
		// Recorded latency is wall clock, not the configured ceiling.
		if o.Latency <= 0 || o.Latency > elapsed {
			t.Errorf("agent %s: latency %v outside observed window %v", o.AgentID, o.Latency, elapsed)
		}
	}
}
