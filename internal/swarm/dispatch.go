package swarm

import (
	"context"
	"log/slog"
	"time"
)

type indexedOutcome struct {
	idx     int
	outcome AgentOutcome
}

// Dispatch fans task out to every agent concurrently, each invocation under
// the invoker's per-agent budget, with stageTimeout as the hard ceiling for
// the whole fan-out. It returns exactly one outcome per agent, in roster
// order: agents still running when the stage deadline fires are recorded as
// timeouts and their invocations are cancelled best-effort, without waiting
// for them to notice.
func Dispatch(ctx context.Context, inv *Invoker, agents []Agent, task Task, stageTimeout time.Duration) []AgentOutcome {
	started := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()

	// Buffered so abandoned goroutines can finish their send and exit.
	results := make(chan indexedOutcome, len(agents))
	for i, agent := range agents {
		go func(idx int, agent Agent) {
			results <- indexedOutcome{idx: idx, outcome: inv.Invoke(stageCtx, agent, task)}
		}(i, agent)
	}

	outcomes := make([]AgentOutcome, len(agents))
	seen := make([]bool, len(agents))
	remaining := len(agents)

collect:
	for remaining > 0 {
		select {
		case r := <-results:
			outcomes[r.idx] = r.outcome
			seen[r.idx] = true
			remaining--
		case <-stageCtx.Done():
			break collect
		}
	}

	elapsed := time.Since(started)
	for i := range agents {
		if !seen[i] {
			outcomes[i] = AgentOutcome{AgentID: agents[i].ID, Status: OutcomeTimeout, Latency: elapsed}
		}
	}

	if remaining > 0 {
		slog.Warn("stage deadline reached before all agents completed",
			"task", task.ID, "pending", remaining, "agents", len(agents))
	}

	return outcomes
}
