// Package swarm implements the consensus engine: fixed groups of
// region-bound LLM agents that execute one task concurrently, plus the
// quorum aggregation that reduces their outcomes to a single stage result.
package swarm

import (
	"context"
	"log/slog"
	"time"
)

// Swarm is a named, pre-assembled group of agents plus the aggregation policy
// for one pipeline stage. Swarms hold no mutable state and may be invoked
// concurrently by any number of pipeline runs.
type Swarm struct {
	name         string
	taskType     TaskType
	agents       []Agent
	policy       Policy
	invoker      *Invoker
	stageTimeout time.Duration
}

func New(name string, taskType TaskType, agents []Agent, policy Policy, invoker *Invoker, stageTimeout time.Duration) *Swarm {
	return &Swarm{
		name:         name,
		taskType:     taskType,
		agents:       agents,
		policy:       policy,
		invoker:      invoker,
		stageTimeout: stageTimeout,
	}
}

func (s *Swarm) Name() string       { return s.name }
func (s *Swarm) TaskType() TaskType { return s.taskType }
func (s *Swarm) Size() int          { return len(s.agents) }

// Run dispatches the task to every agent and aggregates the outcomes. A
// quorum failure comes back as a *QuorumError; per-agent failures never
// surface as errors, they only reduce the ok count.
func (s *Swarm) Run(ctx context.Context, task Task) (*ConsensusResult, error) {
	slog.Info("dispatching swarm", "swarm", s.name, "task", task.ID, "agents", len(s.agents))

	outcomes := Dispatch(ctx, s.invoker, s.agents, task, s.stageTimeout)

	okCount := 0
	for _, o := range outcomes {
		if o.Status == OutcomeOK {
			okCount++
		}
	}
	slog.Info("swarm outcomes collected",
		"swarm", s.name, "task", task.ID, "ok", okCount, "failed", len(s.agents)-okCount)

	result, err := Aggregate(s.taskType, outcomes, s.policy)
	if err != nil {
		slog.Warn("swarm aggregation failed", "swarm", s.name, "task", task.ID, "error", err)
		return nil, err
	}

	slog.Info("swarm consensus reached",
		"swarm", s.name, "task", task.ID,
		"algorithm", result.Algorithm,
		"agreement", result.AgreementScore,
		"confidence", result.Confidence)
	return result, nil
}
