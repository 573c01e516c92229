// Package pipeline runs the four consensus swarms in sequence, threading each
// stage's consensus value into the next stage's task payload.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/swarmopt/swarmopt/internal/bus"
	"github.com/swarmopt/swarmopt/internal/solver"
	"github.com/swarmopt/swarmopt/internal/store"
	"github.com/swarmopt/swarmopt/internal/swarm"
)

// Stage names, in execution order.
type Stage string

const (
	StageIntent Stage = "intent"
	StageData   Stage = "data"
	StageModel  Stage = "model"
	StageSolver Stage = "solver"
)

var stageOrder = []Stage{StageIntent, StageData, StageModel, StageSolver}

var stageTaskTypes = map[Stage]swarm.TaskType{
	StageIntent: swarm.TaskIntentClassification,
	StageData:   swarm.TaskDataAnalysis,
	StageModel:  swarm.TaskModelBuilding,
	StageSolver: swarm.TaskSolutionSolving,
}

// payloadKey is the name under which a stage's consensus value appears in
// downstream task payloads.
var payloadKey = map[Stage]string{
	StageIntent: "intent",
	StageData:   "data",
	StageModel:  "model",
	StageSolver: "solution",
}

// StageRunner is what the controller needs from a swarm. The concrete
// implementation is *swarm.Swarm; tests substitute instrumented fakes.
type StageRunner interface {
	Run(ctx context.Context, task swarm.Task) (*swarm.ConsensusResult, error)
}

// StageResult is one entry of the run trace, recorded whether or not the
// stage succeeded.
type StageResult struct {
	Stage     Stage                  `json:"stage"`
	Status    string                 `json:"status"` // success or failed
	Consensus *swarm.ConsensusResult `json:"consensus,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration"`
}

// Result is the end-to-end trace of one pipeline run. OverallSuccess is true
// only if every stage reached consensus; otherwise FirstFailedStage names the
// stage that halted the run.
type Result struct {
	RunID            string         `json:"run_id"`
	Query            string         `json:"query"`
	Stages           []StageResult  `json:"stages"`
	OverallSuccess   bool           `json:"overall_success"`
	FirstFailedStage Stage          `json:"first_failed_stage,omitempty"`
	TotalDuration    time.Duration  `json:"total_duration"`
	StartedAt        time.Time      `json:"started_at"`
	SolverReport     *solver.Report `json:"solver_report,omitempty"`
}

// Consensus returns the consensus value a given stage produced, or nil.
func (r *Result) Consensus(stage Stage) *swarm.ConsensusResult {
	for _, sr := range r.Stages {
		if sr.Stage == stage {
			return sr.Consensus
		}
	}
	return nil
}

// Controller owns the four swarms and the run lifecycle. Store, events and
// solver are optional; a nil store skips persistence, a nil events client
// skips publication, a nil solver skips the downstream solve.
type Controller struct {
	swarms map[Stage]StageRunner
	store  *store.Store
	events *bus.Client
	solver solver.Solver
}

func NewController(swarms map[Stage]StageRunner) *Controller {
	return &Controller{swarms: swarms}
}

func (c *Controller) WithStore(s *store.Store) *Controller {
	c.store = s
	return c
}

func (c *Controller) WithEvents(client *bus.Client) *Controller {
	c.events = client
	return c
}

func (c *Controller) WithSolver(s solver.Solver) *Controller {
	c.solver = s
	return c
}

// Start launches a run on a background context, so it outlives the caller's
// request, and returns the run ID immediately. Progress is observable through
// the event stream and the persisted run row.
func (c *Controller) Start(query string) string {
	runID := uuid.New().String()
	go c.run(context.Background(), runID, query)
	return runID
}

// Run executes the pipeline for one query and blocks until it finishes. It
// always returns a complete Result: on stage failure the trace stops at the
// failing stage and no downstream swarm is invoked with partial upstream data.
func (c *Controller) Run(ctx context.Context, query string) *Result {
	return c.run(ctx, uuid.New().String(), query)
}

// RunQuery implements the scheduler's runner contract.
func (c *Controller) RunQuery(ctx context.Context, query string) (bool, string, string) {
	result := c.Run(ctx, query)
	errMsg := ""
	if !result.OverallSuccess && len(result.Stages) > 0 {
		errMsg = result.Stages[len(result.Stages)-1].Error
	}
	return result.OverallSuccess, result.RunID, errMsg
}

func (c *Controller) run(ctx context.Context, runID, query string) *Result {
	started := time.Now()
	result := &Result{
		RunID:     runID,
		Query:     query,
		StartedAt: started.UTC(),
	}

	slog.Info("pipeline run started", "run", result.RunID)
	c.persist(result, "running")
	c.events.PublishEvent(result.RunID, "pipeline_started", map[string]any{"query": query})

	consensus := make(map[Stage]*swarm.ConsensusResult, len(stageOrder))

	for _, stage := range stageOrder {
		task := swarm.NewTask(stageTaskTypes[stage], c.stagePayload(query, consensus))

		stageStarted := time.Now()
		c.events.PublishEvent(result.RunID, "stage_started", map[string]any{"stage": string(stage)})

		cr, err := c.swarms[stage].Run(ctx, task)
		sr := StageResult{
			Stage:    stage,
			Duration: time.Since(stageStarted),
		}

		if err != nil {
			sr.Status = "failed"
			sr.Error = err.Error()
			result.Stages = append(result.Stages, sr)
			result.FirstFailedStage = stage

			slog.Warn("pipeline stage failed", "run", result.RunID, "stage", stage, "error", err)
			c.events.PublishEvent(result.RunID, "stage_failed", map[string]any{
				"stage": string(stage),
				"error": err.Error(),
			})
			break
		}

		sr.Status = "success"
		sr.Consensus = cr
		result.Stages = append(result.Stages, sr)
		consensus[stage] = cr

		slog.Info("pipeline stage completed",
			"run", result.RunID, "stage", stage,
			"confidence", cr.Confidence, "duration", sr.Duration)
		c.events.PublishEvent(result.RunID, "stage_completed", map[string]any{
			"stage":      string(stage),
			"confidence": cr.Confidence,
			"agreement":  cr.AgreementScore,
		})
	}

	result.OverallSuccess = result.FirstFailedStage == "" && len(result.Stages) == len(stageOrder)
	if result.OverallSuccess {
		c.runSolver(ctx, result, consensus[StageModel])
	}
	result.TotalDuration = time.Since(started)

	status := "completed"
	if !result.OverallSuccess {
		status = "failed"
	}
	c.persist(result, status)
	c.events.PublishEvent(result.RunID, "pipeline_"+status, map[string]any{
		"total_duration_ms": result.TotalDuration.Milliseconds(),
		"first_failed":      string(result.FirstFailedStage),
	})

	slog.Info("pipeline run finished",
		"run", result.RunID, "status", status, "duration", result.TotalDuration)
	return result
}

// stagePayload builds a stage's task payload from the original query plus
// every consensus value produced so far, never from failed stage data.
func (c *Controller) stagePayload(query string, consensus map[Stage]*swarm.ConsensusResult) map[string]any {
	payload := map[string]any{"query": query}
	for stage, cr := range consensus {
		payload[payloadKey[stage]] = cr.Value
	}
	return payload
}

// runSolver hands the model consensus to the external solver capability.
// Solver failure does not fail the pipeline; the consensus solution remains
// the stage output and the failure is recorded on the report.
func (c *Controller) runSolver(ctx context.Context, result *Result, model *swarm.ConsensusResult) {
	if c.solver == nil || model == nil {
		return
	}

	report, err := c.solver.Solve(ctx, model.Value)
	if err != nil {
		slog.Warn("external solver failed", "run", result.RunID, "error", err)
		result.SolverReport = &solver.Report{Status: "error", Message: err.Error()}
		return
	}
	result.SolverReport = report
}

func (c *Controller) persist(result *Result, status string) {
	if c.store == nil {
		return
	}

	trace, err := json.Marshal(result)
	if err != nil {
		slog.Error("marshal pipeline trace", "run", result.RunID, "error", err)
		trace = nil
	}

	run := &store.PipelineRun{
		ID:               result.RunID,
		Query:            result.Query,
		Status:           status,
		FirstFailedStage: string(result.FirstFailedStage),
		Trace:            trace,
	}
	if err := c.store.SaveRun(run); err != nil {
		slog.Error("persist pipeline run", "run", result.RunID, "error", err)
	}
}
