package swarm

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies which pipeline stage a task belongs to.
type TaskType string

const (
	TaskIntentClassification TaskType = "intent_classification"
	TaskDataAnalysis         TaskType = "data_analysis"
	TaskModelBuilding        TaskType = "model_building"
	TaskSolutionSolving      TaskType = "solution_solving"
)

// Task is the unit of work dispatched to a swarm. It is created immediately
// before a stage dispatch and read-only afterwards.
type Task struct {
	ID        string         `json:"id"`
	Type      TaskType       `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTask builds a task with a fresh dispatch-unique ID.
func NewTask(taskType TaskType, payload map[string]any) Task {
	return Task{
		ID:        fmt.Sprintf("%s-%s", taskType, uuid.New().String()[:8]),
		Type:      taskType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Agent is a stateless worker descriptor: one specialization, one region.
// Agents hold no per-task state and are safe for concurrent reuse across runs.
type Agent struct {
	ID             string `json:"id" yaml:"id"`
	Specialization string `json:"specialization" yaml:"specialization"`
	Role           string `json:"role" yaml:"role"`
	Region         string `json:"region" yaml:"region"`
}

// OutcomeStatus classifies the result of one agent invocation.
type OutcomeStatus string

const (
	OutcomeOK             OutcomeStatus = "ok"
	OutcomeTimeout        OutcomeStatus = "timeout"
	OutcomeTransportError OutcomeStatus = "transport_error"
	OutcomeMalformed      OutcomeStatus = "malformed_output"
)

// AgentOutcome is the result of one agent executing one task. Value and
// RawConfidence are only meaningful when Status is OutcomeOK.
type AgentOutcome struct {
	AgentID       string         `json:"agent_id"`
	Status        OutcomeStatus  `json:"status"`
	Value         map[string]any `json:"value,omitempty"`
	RawConfidence float64        `json:"raw_confidence,omitempty"`
	Latency       time.Duration  `json:"latency"`
}

// ConsensusResult is the aggregated output of one stage.
type ConsensusResult struct {
	Value               map[string]any `json:"value"`
	Confidence          float64        `json:"confidence"`
	AgreementScore      float64        `json:"agreement_score"`
	ParticipatingAgents []string       `json:"participating_agents"`
	Algorithm           string         `json:"algorithm"`
}

// QuorumError reports that too few agents returned ok to aggregate. It is a
// stage-level failure: the pipeline must not proceed past it.
type QuorumError struct {
	TaskType TaskType
	OK       int
	Quorum   int
}

func (e *QuorumError) Error() string {
	return fmt.Sprintf("insufficient quorum for %s: %d ok outcomes, need %d", e.TaskType, e.OK, e.Quorum)
}

// okOutcomes filters to successful outcomes, ordered by agent ID so that
// aggregation is independent of arrival order.
func okOutcomes(outcomes []AgentOutcome) []AgentOutcome {
	ok := make([]AgentOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == OutcomeOK {
			ok = append(ok, o)
		}
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].AgentID < ok[j].AgentID })
	return ok
}
