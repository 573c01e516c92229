package swarm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// payloadOrder fixes the rendering order of task payload keys so the same
// (agent, task) pair always produces the same prompt.
var payloadOrder = []string{"query", "intent", "data", "model"}

var taskInstructions = map[TaskType]string{
	TaskIntentClassification: "Classify the optimization intent behind the user query.",
	TaskDataAnalysis:         "Analyze what data the query implies and extract the parameters needed to build an optimization model.",
	TaskModelBuilding:        "Build an optimization model for the query using the upstream intent and data analysis.",
	TaskSolutionSolving:      "Propose a solution for the optimization model, including solution status and key variable values.",
}

var outputSchemas = map[TaskType]string{
	TaskIntentClassification: `{"primary_intent": "<label>", "confidence": <0..1>}`,
	TaskDataAnalysis:         `{"analysis": {...}, "analysis_type": "<category>", "confidence": <0..1>}`,
	TaskModelBuilding:        `{"model": {...}, "model_type": "<category>", "confidence": <0..1>}`,
	TaskSolutionSolving:      `{"solution": {...}, "solution_status": "<category>", "confidence": <0..1>}`,
}

// BuildPrompt renders the prompt for one agent and one task. The output is a
// pure function of (specialization, task type, payload).
func BuildPrompt(agent Agent, task Task) string {
	var sb strings.Builder

	sb.WriteString("## Task\n\n")
	sb.WriteString(taskInstructions[task.Type])
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "## Your Specialization\n\nApproach this strictly from the angle of %s, in your role as %s.\n\n",
		agent.Specialization, agent.Role)

	sb.WriteString("## Inputs\n\n")
	for _, key := range payloadOrder {
		v, ok := task.Payload[key]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n\n%s\n\n", key, renderPayloadValue(v))
	}

	sb.WriteString("## Output\n\nRespond with a single JSON object of the form:\n\n")
	sb.WriteString(outputSchemas[task.Type])
	sb.WriteString("\n")

	return sb.String()
}

// renderPayloadValue renders upstream consensus values as JSON. Map keys are
// sorted by the encoder, keeping the prompt deterministic.
func renderPayloadValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
