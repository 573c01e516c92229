package swarm

import (
	"context"
	"log/slog"
	"time"

	"github.com/swarmopt/swarmopt/internal/llm"
)

const retryBackoff = 250 * time.Millisecond

// Invoker executes one agent against one task and always reports the result as
// an AgentOutcome: no error ever crosses this boundary. Transport failures and
// timeouts get exactly one retry after a short fixed backoff, so total latency
// stays bounded by roughly twice the agent timeout.
type Invoker struct {
	completer    llm.Completer
	agentTimeout time.Duration
}

func NewInvoker(completer llm.Completer, agentTimeout time.Duration) *Invoker {
	return &Invoker{completer: completer, agentTimeout: agentTimeout}
}

// Invoke builds the agent's prompt, calls its regional endpoint and parses the
// response into the task type's schema. The returned outcome carries one of
// ok, timeout, transport_error or malformed_output.
func (iv *Invoker) Invoke(ctx context.Context, agent Agent, task Task) AgentOutcome {
	started := time.Now()
	prompt := BuildPrompt(agent, task)

	outcome := iv.attempt(ctx, agent, task, prompt)
	if outcome.Status == OutcomeTransportError || outcome.Status == OutcomeTimeout {
		// One retry, unless the stage has already been cancelled.
		select {
		case <-ctx.Done():
		case <-time.After(retryBackoff):
			slog.Debug("retrying agent invocation",
				"agent", agent.ID, "task", task.ID, "status", outcome.Status)
			outcome = iv.attempt(ctx, agent, task, prompt)
		}
	}

	outcome.AgentID = agent.ID
	outcome.Latency = time.Since(started)
	return outcome
}

func (iv *Invoker) attempt(ctx context.Context, agent Agent, task Task, prompt string) AgentOutcome {
	callCtx, cancel := context.WithTimeout(ctx, iv.agentTimeout)
	defer cancel()

	text, err := iv.completer.Complete(callCtx, agent.Region, prompt)
	if err != nil {
		if llm.IsTimeout(err) || callCtx.Err() != nil {
			return AgentOutcome{Status: OutcomeTimeout}
		}
		slog.Debug("agent transport failure", "agent", agent.ID, "task", task.ID, "error", err)
		return AgentOutcome{Status: OutcomeTransportError}
	}

	value, confidence, err := parseValue(task.Type, text)
	if err != nil {
		slog.Debug("agent returned malformed output", "agent", agent.ID, "task", task.ID, "error", err)
		return AgentOutcome{Status: OutcomeMalformed}
	}

	return AgentOutcome{Status: OutcomeOK, Value: value, RawConfidence: confidence}
}
