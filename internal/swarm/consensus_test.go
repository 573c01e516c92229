package swarm

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func okIntent(agentID, label string, confidence float64) AgentOutcome {
	return AgentOutcome{
		AgentID:       agentID,
		Status:        OutcomeOK,
		Value:         map[string]any{"primary_intent": label, "confidence": confidence},
		RawConfidence: confidence,
	}
}

func failed(agentID string, status OutcomeStatus) AgentOutcome {
	return AgentOutcome{AgentID: agentID, Status: status}
}

func TestAggregateQuorumBoundary(t *testing.T) {
	policy := PolicyFor(TaskIntentClassification, 3)

	// Exactly at quorum: succeeds
	outcomes := []AgentOutcome{
		okIntent("a1", "production_scheduling", 0.9),
		okIntent("a2", "production_scheduling", 0.8),
		okIntent("a3", "production_scheduling", 0.7),
		failed("a4", OutcomeTimeout),
		failed("a5", OutcomeTransportError),
	}
	if _, err := Aggregate(TaskIntentClassification, outcomes, policy); err != nil {
		t.Fatalf("expected success at quorum, got %v", err)
	}

	// One below quorum: fails with a QuorumError
	outcomes[2] = failed("a3", OutcomeMalformed)
	_, err := Aggregate(TaskIntentClassification, outcomes, policy)
	var qe *QuorumError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuorumError, got %v", err)
	}
	if qe.OK != 2 || qe.Quorum != 3 {
		t.Errorf("unexpected quorum error detail: %+v", qe)
	}
}

func TestAggregateZeroOKIsAlwaysFailure(t *testing.T) {
	outcomes := []AgentOutcome{
		failed("a1", OutcomeTimeout),
		failed("a2", OutcomeTransportError),
		failed("a3", OutcomeMalformed),
	}
	// Even with the minimum quorum of 1, zero ok outcomes never aggregate.
	policy := PolicyFor(TaskModelBuilding, 0)
	if _, err := Aggregate(TaskModelBuilding, outcomes, policy); err == nil {
		t.Fatal("expected failure with zero ok outcomes")
	}
}

func TestAggregateMajorityVoteScenario(t *testing.T) {
	// 3 agents vote production_scheduling (0.9, 0.8, 0.7), 2 vote
	// cost_reduction (0.6, 0.5): agreement 0.6, confidence 0.6 x 0.8 = 0.48.
	outcomes := []AgentOutcome{
		okIntent("a1", "production_scheduling", 0.9),
		okIntent("a2", "production_scheduling", 0.8),
		okIntent("a3", "production_scheduling", 0.7),
		okIntent("a4", "cost_reduction", 0.6),
		okIntent("a5", "cost_reduction", 0.5),
	}

	result, err := Aggregate(TaskIntentClassification, outcomes, PolicyFor(TaskIntentClassification, 3))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if got := result.Value["primary_intent"]; got != "production_scheduling" {
		t.Errorf("expected production_scheduling, got %v", got)
	}
	if math.Abs(result.AgreementScore-0.6) > 1e-9 {
		t.Errorf("expected agreement 0.6, got %f", result.AgreementScore)
	}
	if math.Abs(result.Confidence-0.48) > 1e-9 {
		t.Errorf("expected confidence 0.48, got %f", result.Confidence)
	}
	if len(result.ParticipatingAgents) != 5 {
		t.Errorf("expected 5 participating agents, got %d", len(result.ParticipatingAgents))
	}
	if result.Algorithm != AlgorithmMajorityVote {
		t.Errorf("unexpected algorithm %s", result.Algorithm)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	outcomes := []AgentOutcome{
		okIntent("a1", "production_scheduling", 0.9),
		okIntent("a2", "cost_reduction", 0.8),
		okIntent("a3", "production_scheduling", 0.7),
		failed("a4", OutcomeTimeout),
		okIntent("a5", "cost_reduction", 0.6),
	}
	policy := PolicyFor(TaskIntentClassification, 2)

	reference, err := Aggregate(TaskIntentClassification, outcomes, policy)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]AgentOutcome, len(outcomes))
		copy(shuffled, outcomes)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		result, err := Aggregate(TaskIntentClassification, shuffled, policy)
		if err != nil {
			t.Fatalf("aggregate shuffled: %v", err)
		}
		if !reflect.DeepEqual(reference, result) {
			t.Fatalf("aggregation depends on outcome order:\n ref %+v\n got %+v", reference, result)
		}
	}
}

func TestAggregateTieBreakByConfidence(t *testing.T) {
	// 2-vs-2 split; the cost_reduction pair has the higher mean confidence.
	outcomes := []AgentOutcome{
		okIntent("a1", "production_scheduling", 0.6),
		okIntent("a2", "production_scheduling", 0.6),
		okIntent("a3", "cost_reduction", 0.9),
		okIntent("a4", "cost_reduction", 0.8),
	}

	result, err := Aggregate(TaskIntentClassification, outcomes, PolicyFor(TaskIntentClassification, 2))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got := result.Value["primary_intent"]; got != "cost_reduction" {
		t.Errorf("expected cost_reduction to win on confidence, got %v", got)
	}
}

func TestAggregateTieBreakByAgentID(t *testing.T) {
	// 2-vs-2 split with equal mean confidence on both sides: the group holding
	// the lexicographically smallest agent ID wins.
	outcomes := []AgentOutcome{
		okIntent("a4", "cost_reduction", 0.8),
		okIntent("a1", "production_scheduling", 0.7),
		okIntent("a3", "cost_reduction", 0.6),
		okIntent("a2", "production_scheduling", 0.7),
	}

	result, err := Aggregate(TaskIntentClassification, outcomes, PolicyFor(TaskIntentClassification, 2))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got := result.Value["primary_intent"]; got != "production_scheduling" {
		t.Errorf("expected production_scheduling (min agent a1), got %v", got)
	}
}

func okModel(agentID, modelType string, confidence float64) AgentOutcome {
	return AgentOutcome{
		AgentID:       agentID,
		Status:        OutcomeOK,
		Value: map[string]any{
			"model":      map[string]any{"variables": agentID},
			"model_type": modelType,
			"confidence": confidence,
		},
		RawConfidence: confidence,
	}
}

func TestAggregateBestCandidate(t *testing.T) {
	outcomes := []AgentOutcome{
		okModel("m1", "linear_program", 0.7),
		okModel("m2", "linear_program", 0.95),
		okModel("m3", "mixed_integer", 0.8),
		okModel("m4", "linear_program", 0.6),
	}

	result, err := Aggregate(TaskModelBuilding, outcomes, PolicyFor(TaskModelBuilding, 2))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// Highest-confidence candidate wins whole, no field merging.
	if got := result.Value["model"].(map[string]any)["variables"]; got != "m2" {
		t.Errorf("expected m2's model, got %v", got)
	}
	// 3 of 4 ok outcomes share linear_program.
	if math.Abs(result.AgreementScore-0.75) > 1e-9 {
		t.Errorf("expected agreement 0.75, got %f", result.AgreementScore)
	}
	// confidence = 0.75 x mean(0.7, 0.95, 0.6)
	want := 0.75 * (0.7 + 0.95 + 0.6) / 3
	if math.Abs(result.Confidence-want) > 1e-9 {
		t.Errorf("expected confidence %f, got %f", want, result.Confidence)
	}
	if result.Algorithm != AlgorithmBestCandidate {
		t.Errorf("unexpected algorithm %s", result.Algorithm)
	}
}

func TestAggregateBestCandidateNoSimilarityKey(t *testing.T) {
	outcomes := []AgentOutcome{
		{
			AgentID:       "s1",
			Status:        OutcomeOK,
			Value:         map[string]any{"solution": map[string]any{"x": 1.0}, "confidence": 0.9},
			RawConfidence: 0.9,
		},
		{
			AgentID:       "s2",
			Status:        OutcomeOK,
			Value:         map[string]any{"solution": map[string]any{"x": 2.0}, "confidence": 0.5},
			RawConfidence: 0.5,
		},
	}

	result, err := Aggregate(TaskSolutionSolving, outcomes, PolicyFor(TaskSolutionSolving, 2))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// Without a usable similarity category, agreement defaults to 1/count(ok).
	if math.Abs(result.AgreementScore-0.5) > 1e-9 {
		t.Errorf("expected agreement 0.5, got %f", result.AgreementScore)
	}
	if got := result.Value["solution"].(map[string]any)["x"]; got != 1.0 {
		t.Errorf("expected highest-confidence candidate, got %v", got)
	}
}

func TestAggregateBestCandidateConfidenceTieBreak(t *testing.T) {
	outcomes := []AgentOutcome{
		okModel("m9", "linear_program", 0.8),
		okModel("m2", "mixed_integer", 0.8),
	}

	result, err := Aggregate(TaskModelBuilding, outcomes, PolicyFor(TaskModelBuilding, 1))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got := result.Value["model_type"]; got != "mixed_integer" {
		t.Errorf("expected lowest agent ID (m2) to win the tie, got %v", got)
	}
}
