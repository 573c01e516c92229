package pipeline

import (
	"github.com/swarmopt/swarmopt/internal/config"
	"github.com/swarmopt/swarmopt/internal/llm"
	"github.com/swarmopt/swarmopt/internal/swarm"
)

// BuildController assembles the four stage swarms from config over a shared
// completion client. Swarm sizes and quorums come straight from the roster
// and quorum tables; aggregation policies are the stage defaults.
func BuildController(cfg *config.Config, completer llm.Completer) *Controller {
	invoker := swarm.NewInvoker(completer, cfg.Pipeline.AgentTimeout)

	rosters := map[Stage][]config.AgentDef{
		StageIntent: cfg.Swarms.Intent,
		StageData:   cfg.Swarms.Data,
		StageModel:  cfg.Swarms.Model,
		StageSolver: cfg.Swarms.Solver,
	}

	swarms := make(map[Stage]StageRunner, len(stageOrder))
	for _, stage := range stageOrder {
		taskType := stageTaskTypes[stage]
		policy := swarm.PolicyFor(taskType, cfg.Pipeline.Quorum[string(stage)])
		swarms[stage] = swarm.New(
			string(stage),
			taskType,
			toAgents(rosters[stage]),
			policy,
			invoker,
			cfg.Pipeline.StageTimeout,
		)
	}

	return NewController(swarms)
}

func toAgents(defs []config.AgentDef) []swarm.Agent {
	agents := make([]swarm.Agent, len(defs))
	for i, d := range defs {
		agents[i] = swarm.Agent{
			ID:             d.ID,
			Specialization: d.Specialization,
			Role:           d.Role,
			Region:         d.Region,
		}
	}
	return agents
}
